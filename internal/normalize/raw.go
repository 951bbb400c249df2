package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RawField is one key/value pair of the model's JSON object
type RawField struct {
	Key   string
	Value any
}

// RawFieldMap holds the model's JSON object in document order.
// Keys are untrusted and may repeat.
type RawFieldMap []RawField

// ParseRaw decodes the text between the first '{' and the last '}' of a
// model response. Braces inside the surrounding prose are not accounted for.
func ParseRaw(response string) (RawFieldMap, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return nil, &ParseError{Message: "no JSON object found in model response"}
	}

	return DecodeRaw([]byte(response[start : end+1]))
}

// DecodeRaw decodes a JSON object keeping its keys in document order.
func DecodeRaw(data []byte) (RawFieldMap, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &ParseError{Message: "failed to parse JSON response", Cause: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ParseError{Message: fmt.Sprintf("expected JSON object, got %v", tok)}
	}

	var fields RawFieldMap
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Message: "failed to parse JSON response", Cause: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &ParseError{Message: fmt.Sprintf("unexpected token %v", tok)}
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("failed to decode value for %q", key), Cause: err}
		}
		fields = append(fields, RawField{Key: key, Value: value})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, &ParseError{Message: "failed to parse JSON response", Cause: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: "unexpected data after JSON object"}
	}

	return fields, nil
}
