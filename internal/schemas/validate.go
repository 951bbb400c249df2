// Package schemas provides JSON Schema validation functionality for structured model output.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed form_record.schema.json
var formRecordSchema string

var (
	formRecordOnce   sync.Once
	formRecordLoaded *gojsonschema.Schema
	formRecordErr    error
)

// FormRecordSchema returns the raw JSON Schema for reconciled W-9 fields.
func FormRecordSchema() string {
	return formRecordSchema
}

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// ValidateFormRecord validates a reconciled field map against the form record schema.
func ValidateFormRecord(fields map[string]any) error {
	formRecordOnce.Do(func() {
		formRecordLoaded, formRecordErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(formRecordSchema))
	})
	if formRecordErr != nil {
		return &SchemaLoadError{
			Path:    "form_record.schema.json",
			Message: "invalid embedded schema",
			Cause:   formRecordErr,
		}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	result, err := formRecordLoaded.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &SchemaLoadError{
			Path:    "form_record.schema.json",
			Message: "document could not be loaded",
			Cause:   err,
		}
	}

	return toValidationError(result)
}

// toValidationError converts a failed result into a structured error, or nil when valid.
func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
