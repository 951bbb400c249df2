// Package auth provides bearer tokens for the document-analysis and model
// gateways.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CognitiveServicesScope is the AAD scope for Azure AI services.
const CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// TokenSource returns a bearer token that is valid at the time of the call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, used in development and tests.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", &TokenError{Message: "static token is empty"}
	}
	return string(s), nil
}

// AzureADTokenURL returns the v2 token endpoint of an AAD tenant.
func AzureADTokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// ClientCredentialsConfig configures a client-credentials grant.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// HTTPClient is used for the token request when set.
	HTTPClient *http.Client
}

// ClientCredentials fetches tokens with the OAuth2 client-credentials grant
// and reuses a token until it is about to expire.
type ClientCredentials struct {
	mu         sync.Mutex
	cfg        *clientcredentials.Config
	httpClient *http.Client
	token      *oauth2.Token
	logger     *slog.Logger
}

// NewClientCredentials creates a client-credentials token source.
func NewClientCredentials(cfg ClientCredentialsConfig, logger *slog.Logger) (*ClientCredentials, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and client secret are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ClientCredentials{
		cfg: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}, nil
}

// Token returns the cached token or requests a new one.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token.AccessToken, nil
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	tok, err := c.cfg.Token(ctx)
	if err != nil {
		c.logger.Error("auth.token.error", "token_url", c.cfg.TokenURL, "error", err)
		return "", &TokenError{Message: "failed to obtain access token", Cause: err}
	}

	c.logger.Debug("auth.token.refreshed", "expires_at", tok.Expiry)
	c.token = tok
	return tok.AccessToken, nil
}

// Invalidate forgets the cached token so the next call requests a new one.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// TokenError reports a failed token request.
type TokenError struct {
	Message string
	Cause   error
}

func (e *TokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TokenError) Unwrap() error {
	return e.Cause
}
