package docanalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/taxform-extractor/internal/auth"
	"github.com/jonathan/taxform-extractor/internal/types"
)

// Defaults for the layout model.
const (
	DefaultAPIVersion   = "2024-11-30"
	DefaultModelID      = "prebuilt-layout"
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 120
)

// AzureConfig configures the Document Intelligence REST client.
type AzureConfig struct {
	Endpoint   string
	APIVersion string
	ModelID    string
	Features   []string

	// Exactly one of Tokens and APIKey is used; Tokens wins when both are set.
	Tokens auth.TokenSource
	APIKey string

	PollInterval time.Duration
	MaxPolls     int
	HTTPClient   *http.Client
}

// AzureClient analyzes documents with Azure AI Document Intelligence.
// Analysis is a long-running operation: submit, then poll Operation-Location.
type AzureClient struct {
	cfg    AzureConfig
	http   *http.Client
	logger *slog.Logger
}

// NewAzureClient creates a Document Intelligence client.
func NewAzureClient(cfg AzureConfig, logger *slog.Logger) (*AzureClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("document analysis endpoint is required")
	}
	if cfg.Tokens == nil && cfg.APIKey == "" {
		return nil, fmt.Errorf("document analysis credentials are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Features == nil {
		cfg.Features = []string{"keyValuePairs"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureClient{cfg: cfg, http: httpClient, logger: logger}, nil
}

// Analyze submits the document and waits for the layout result.
func (c *AzureClient) Analyze(ctx context.Context, data []byte) (*types.Document, error) {
	reqID := uuid.New().String()
	start := time.Now()

	c.logger.Info("docanalysis.analyze.start", "req_id", reqID, "model", c.cfg.ModelID, "bytes", len(data))

	opURL, err := c.submit(ctx, data)
	if err != nil {
		c.logger.Error("docanalysis.analyze.submit_error", "req_id", reqID, "error", err)
		return nil, err
	}

	doc, err := c.poll(ctx, opURL)
	if err != nil {
		c.logger.Error("docanalysis.analyze.error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	c.logger.Info("docanalysis.analyze.ok",
		"req_id", reqID,
		"pages", len(doc.Pages),
		"key_value_pairs", len(doc.KeyValuePairs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

func (c *AzureClient) analyzeURL() string {
	q := url.Values{}
	q.Set("api-version", c.cfg.APIVersion)
	if len(c.cfg.Features) > 0 {
		q.Set("features", strings.Join(c.cfg.Features, ","))
	}
	return fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.ModelID, q.Encode())
}

func (c *AzureClient) submit(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyze request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "response has no Operation-Location header"}
	}
	return opURL, nil
}

// analyzeOperation is the body of an Operation-Location poll.
type analyzeOperation struct {
	Status        string         `json:"status"`
	Error         *serviceError  `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeResult struct {
	Pages         []types.Page   `json:"pages"`
	KeyValuePairs []keyValuePair `json:"keyValuePairs"`
}

type keyValuePair struct {
	Key        *documentElement `json:"key"`
	Value      *documentElement `json:"value"`
	Confidence float64          `json:"confidence"`
}

type documentElement struct {
	Content string `json:"content"`
}

func (c *AzureClient) poll(ctx context.Context, opURL string) (*types.Document, error) {
	wait := time.Duration(0)
	for attempt := 0; attempt < c.cfg.MaxPolls; attempt++ {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		op, retryAfter, err := c.getOperation(ctx, opURL)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			return toDocument(op.AnalyzeResult), nil
		case "failed", "canceled":
			apiErr := &APIError{StatusCode: http.StatusOK, Message: "analysis " + strings.ToLower(op.Status)}
			if op.Error != nil {
				apiErr.Code = op.Error.Code
				apiErr.Message = op.Error.Message
			}
			return nil, apiErr
		}

		wait = c.cfg.PollInterval
		if retryAfter >= 0 {
			wait = retryAfter
		}
	}
	return nil, fmt.Errorf("analysis did not finish after %d polls", c.cfg.MaxPolls)
}

// getOperation fetches the operation status. retryAfter is -1 when the
// service did not send a Retry-After header.
func (c *AzureClient) getOperation(ctx context.Context, opURL string) (*analyzeOperation, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build poll request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("poll request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, decodeAPIError(resp)
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, 0, fmt.Errorf("decode analyze result: %w", err)
	}

	retryAfter := time.Duration(-1)
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return &op, retryAfter, nil
}

func (c *AzureClient) authorize(ctx context.Context, req *http.Request) error {
	if c.cfg.Tokens != nil {
		token, err := c.cfg.Tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("document analysis credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope struct {
		Error *serviceError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func toDocument(res *analyzeResult) *types.Document {
	doc := &types.Document{}
	if res == nil {
		return doc
	}
	doc.Pages = res.Pages
	for _, kv := range res.KeyValuePairs {
		pair := types.KeyValuePair{Confidence: kv.Confidence}
		if kv.Key != nil {
			pair.Key = kv.Key.Content
		}
		if kv.Value != nil {
			pair.Value = kv.Value.Content
		}
		doc.KeyValuePairs = append(doc.KeyValuePairs, pair)
	}
	return doc
}
