package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(ExtractionFile, KeyExtractW9)
	require.NoError(t, err)
	assert.Contains(t, prompt, "extracts structured data from W9 tax forms")
	assert.Contains(t, prompt, "{{.ExtractedText}}")
	assert.Contains(t, prompt, "{{.CheckboxText}}")
}

func TestGet_SystemPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(ExtractionFile, KeySystem)
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant that extracts W9 tax form data.", prompt)
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(ExtractionFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFormat(t *testing.T) {
	template := "Hello {{.Name}}, welcome to {{.Company}}!"
	data := map[string]string{
		"Name":    "Alice",
		"Company": "Acme Corp",
	}

	assert.Equal(t, "Hello Alice, welcome to Acme Corp!", Format(template, data))
}

func TestFormat_ValueContainingPlaceholder(t *testing.T) {
	template := "A={{.A}} B={{.B}}"
	data := map[string]string{"A": "{{.B}}", "B": "b"}

	assert.Equal(t, "A={{.B}} B=b", Format(template, data))
}

func TestFormat_EmptyData(t *testing.T) {
	template := "Hello {{.Name}}"

	assert.Equal(t, template, Format(template, map[string]string{}))
}
