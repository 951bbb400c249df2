package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AzureOpenAIClient implements Client for an Azure OpenAI chat deployment
type AzureOpenAIClient struct {
	config *Config
	token  string
	http   *http.Client
	logger *slog.Logger
}

// NewAzureOpenAIClient creates a client bound to one bearer token.
func NewAzureOpenAIClient(config *Config, token string, logger *slog.Logger) (*AzureOpenAIClient, error) {
	if token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureOpenAIClient{
		config: config,
		token:  token,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

func (c *AzureOpenAIClient) chatURL() string {
	q := url.Values{}
	q.Set("api-version", c.config.APIVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		strings.TrimRight(c.config.Endpoint, "/"), url.PathEscape(c.config.Model), q.Encode())
}

// Invoke sends one chat-completions request.
func (c *AzureOpenAIClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"messages":    messages,
		"temperature": c.config.Temperature,
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.config.ProjectID != "" {
		req.Header.Set("projectId", c.config.ProjectID)
	}

	c.logger.Info("llm.invoke.start",
		"req_id", rid,
		"provider", ProviderAzureOpenAI,
		"deployment", c.config.Model,
		"messages", len(messages),
		"content_length", len(bs),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("llm.invoke.send_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", &APICallError{Provider: ProviderAzureOpenAI, Cause: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("llm.invoke.response_body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		c.logger.Error("llm.invoke.http_error", "req_id", rid, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", &APICallError{
			Provider:   ProviderAzureOpenAI,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat completion")
	}

	content := cc.Choices[0].Message.Content
	c.logger.Info("llm.invoke.ok",
		"req_id", rid,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// Close releases resources held by the client
func (c *AzureOpenAIClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
