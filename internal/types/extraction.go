package types

import "encoding/json"

// ExtractionResult is the outcome for one extracted document.
// Exactly one of Record or Error is set.
type ExtractionResult struct {
	File     string
	Filename string
	Record   *FormRecord
	Error    string
}

// Failed reports whether the result carries an error payload.
func (r ExtractionResult) Failed() bool {
	return r.Record == nil
}

// MarshalJSON renders the result as {file, filename, response}, where
// response is either the form record or {"error": message}.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	var response any
	if r.Record != nil {
		response = r.Record
	} else {
		response = map[string]string{"error": r.Error}
	}
	return json.Marshal(struct {
		File     string `json:"file"`
		Filename string `json:"filename"`
		Response any    `json:"response"`
	}{
		File:     r.File,
		Filename: r.Filename,
		Response: response,
	})
}

// SkipReason explains why a document produced no result
type SkipReason string

const (
	// SkipNoPages means the analyzer returned a document without pages
	SkipNoPages SkipReason = "no_pages"
	// SkipValidationFailed means the model output failed schema validation
	SkipValidationFailed SkipReason = "validation_failed"
)

// Skip records a document that was deliberately left out of the results.
type Skip struct {
	File     string     `json:"file"`
	Filename string     `json:"filename"`
	Reason   SkipReason `json:"reason"`
	Detail   string     `json:"detail,omitempty"`
}
