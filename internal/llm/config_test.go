package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderAzureOpenAI, config.Provider)
	assert.Equal(t, "gpt-4.1-2025-04-14", config.Model)
	assert.Equal(t, "2025-01-01-preview", config.APIVersion)
	assert.True(t, config.NeedsToken())
}

func TestDefaultGeminiAndVertexConfig(t *testing.T) {
	assert.Equal(t, ProviderGemini, DefaultGeminiConfig().Provider)
	assert.False(t, DefaultGeminiConfig().NeedsToken())

	vertex := DefaultVertexConfig()
	assert.Equal(t, ProviderVertex, vertex.Provider)
	assert.Equal(t, "us-central1", vertex.Location)
	assert.False(t, vertex.NeedsToken())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		base    func() *Config
		wantErr bool
	}{
		{name: "azure ok", base: DefaultConfig, mutate: func(c *Config) { c.Endpoint = "https://gw" }},
		{name: "azure no endpoint", base: DefaultConfig, mutate: func(c *Config) {}, wantErr: true},
		{name: "azure no api version", base: DefaultConfig, mutate: func(c *Config) { c.Endpoint = "https://gw"; c.APIVersion = "" }, wantErr: true},
		{name: "gemini ok", base: DefaultGeminiConfig, mutate: func(c *Config) { c.APIKey = "k" }},
		{name: "gemini no key", base: DefaultGeminiConfig, mutate: func(c *Config) {}, wantErr: true},
		{name: "vertex ok", base: DefaultVertexConfig, mutate: func(c *Config) { c.GCPProject = "p" }},
		{name: "vertex no project", base: DefaultVertexConfig, mutate: func(c *Config) {}, wantErr: true},
		{name: "no model", base: DefaultGeminiConfig, mutate: func(c *Config) { c.APIKey = "k"; c.Model = "" }, wantErr: true},
		{name: "unknown provider", base: DefaultConfig, mutate: func(c *Config) { c.Provider = "anthropic" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderConstants(t *testing.T) {
	assert.Equal(t, Provider("azure"), ProviderAzureOpenAI)
	assert.Equal(t, Provider("gemini"), ProviderGemini)
	assert.Equal(t, Provider("vertex"), ProviderVertex)
}
