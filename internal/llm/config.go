// Package llm provides the language-model clients used for field extraction.
// All providers expose the same chat-style Client interface.
package llm

import (
	"fmt"
	"time"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderAzureOpenAI is an Azure OpenAI deployment reached with an AAD bearer token
	ProviderAzureOpenAI Provider = "azure"
	// ProviderGemini is the Google Gemini API
	ProviderGemini Provider = "gemini"
	// ProviderVertex is Gemini on Vertex AI, using application default credentials
	ProviderVertex Provider = "vertex"
)

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Model       string // deployment name for Azure OpenAI
	Temperature float32
	Timeout     time.Duration

	// Azure OpenAI
	Endpoint   string
	APIVersion string
	ProjectID  string // sent as the projectId header when set

	// Gemini
	APIKey string

	// Vertex AI
	GCPProject string
	Location   string
}

// DefaultConfig returns the default configuration (Azure OpenAI)
func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderAzureOpenAI,
		Model:       "gpt-4.1-2025-04-14",
		APIVersion:  "2025-01-01-preview",
		Temperature: 0,
		Timeout:     60 * time.Second,
	}
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider:    ProviderGemini,
		Model:       "gemini-2.5-flash",
		Temperature: 0.1,
		Timeout:     60 * time.Second,
	}
}

// DefaultVertexConfig returns the default Vertex AI configuration
func DefaultVertexConfig() *Config {
	return &Config{
		Provider:    ProviderVertex,
		Model:       "gemini-2.5-flash",
		Location:    "us-central1",
		Temperature: 0.1,
		Timeout:     60 * time.Second,
	}
}

// NeedsToken reports whether the provider authenticates with a bearer
// token obtained per batch.
func (c *Config) NeedsToken() bool {
	return c.Provider == ProviderAzureOpenAI
}

// Validate checks the provider-specific settings.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch c.Provider {
	case ProviderAzureOpenAI:
		if c.Endpoint == "" {
			return fmt.Errorf("azure openai endpoint is required")
		}
		if c.APIVersion == "" {
			return fmt.Errorf("azure openai api version is required")
		}
	case ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("API key is required")
		}
	case ProviderVertex:
		if c.GCPProject == "" || c.Location == "" {
			return fmt.Errorf("vertex project and location are required")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
	return nil
}
