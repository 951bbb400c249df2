package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRaw_SurroundingProse(t *testing.T) {
	fields, err := ParseRaw(`Sure! {"name": "Acme"} Thanks`)
	require.NoError(t, err)

	assert.Equal(t, RawFieldMap{{Key: "name", Value: "Acme"}}, fields)
}

func TestParseRaw_KeepsDocumentOrderAndDuplicates(t *testing.T) {
	fields, err := ParseRaw("```json\n{\"zip\": \"1\", \"name\": \"A\", \"Name\": \"B\", \"nested\": {\"k\": [1, 2]}}\n```")
	require.NoError(t, err)

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"zip", "name", "Name", "nested"}, keys)
	assert.Equal(t, map[string]any{"k": []any{json.Number("1"), json.Number("2")}}, fields[3].Value)
}

func TestParseRaw_NumbersStayNumbers(t *testing.T) {
	fields, err := ParseRaw(`{"zip_code": 55401, "user_signed": true, "ssn": null}`)
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.Equal(t, json.Number("55401"), fields[0].Value)
	assert.Equal(t, true, fields[1].Value)
	assert.Nil(t, fields[2].Value)
}

func TestParseRaw_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no braces", input: "I could not read the form."},
		{name: "closing before opening", input: "} nothing {"},
		{name: "invalid json", input: `{"name": Acme}`},
		{name: "braces in prose", input: `Use {braces} like this: {"name": "Acme"}`},
		{name: "two objects", input: `{"name": "A"} and {"city": "B"}`},
		{name: "array only", input: `["name"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRaw(tt.input)
			require.Error(t, err)

			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestDecodeRaw_RejectsNonObject(t *testing.T) {
	_, err := DecodeRaw([]byte(`"just a string"`))
	assert.Error(t, err)

	fields, err := DecodeRaw([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, fields)
}
