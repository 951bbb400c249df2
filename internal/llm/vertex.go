package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient implements Client for Gemini models on Vertex AI
type VertexClient struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewVertexClient creates a Vertex AI client using application default
// credentials.
func NewVertexClient(ctx context.Context, config *Config, logger *slog.Logger) (*VertexClient, error) {
	if config.GCPProject == "" || config.Location == "" {
		return nil, fmt.Errorf("vertex project and location are required")
	}

	client, err := genai.NewClient(ctx, config.GCPProject, config.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &VertexClient{client: client, config: config, logger: logger}, nil
}

// Invoke generates a reply with the configured model.
func (c *VertexClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitMessages(messages)

	model := c.client.GenerativeModel(c.config.Model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(c.config.Temperature),
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	parts := make([]genai.Part, 0, len(turns))
	for _, m := range turns {
		parts = append(parts, genai.Text(m.Content))
	}

	c.logger.Info("llm.invoke.start", "provider", ProviderVertex, "model", c.config.Model, "messages", len(messages))
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", &APICallError{Provider: ProviderVertex, Message: "failed to generate content", Cause: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return sb.String(), nil
}

// Close releases resources held by the client
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
