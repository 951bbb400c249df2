package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Role is the author of a chat message
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to the model
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client is an abstraction over LLM providers
type Client interface {
	// Invoke sends the conversation and returns the model's text reply
	Invoke(ctx context.Context, messages []Message) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration. token is the
// bearer token for providers where NeedsToken reports true.
func NewClient(ctx context.Context, config *Config, token string, logger *slog.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderAzureOpenAI:
		return NewAzureOpenAIClient(config, token, logger)
	case ProviderGemini:
		return NewGeminiClient(ctx, config, logger)
	case ProviderVertex:
		return NewVertexClient(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}

// APICallError is a failed model call
type APICallError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Cause      error
}

func (e *APICallError) Error() string {
	msg := fmt.Sprintf("%s call failed", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// splitMessages separates system instructions from the conversation turns.
func splitMessages(messages []Message) (system string, turns []Message) {
	var sys []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(sys, "\n\n"), turns
}
