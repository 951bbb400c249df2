// Package docanalysis turns PDF bytes into page layout: text lines,
// selection marks and key/value pairs.
package docanalysis

import (
	"context"
	"fmt"

	"github.com/jonathan/taxform-extractor/internal/types"
)

// Analyzer extracts the layout of a document.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (*types.Document, error)
}

// Provider selects an Analyzer implementation.
type Provider string

const (
	// ProviderAzure is Azure AI Document Intelligence
	ProviderAzure Provider = "azure"
	// ProviderLocal reads the PDF content stream directly
	ProviderLocal Provider = "local"
)

// APIError is a non-success answer from the analysis service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("document analysis failed (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("document analysis failed (status %d): %s", e.StatusCode, e.Message)
}
