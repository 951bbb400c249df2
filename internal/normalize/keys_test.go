package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/taxform-extractor/internal/types"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Zip_Code ", "zip code"},
		{"user-signed", "user signed"},
		{"BUSINESS NAME", "business name"},
		{"ein", "ein"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanKey(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("zip code", "zip code"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 12.0/13.0, Similarity("address", "adress"), 1e-9)
	assert.InDelta(t, 12.0/17.0, Similarity("entity type", "entity"), 1e-9)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		key    string
		target string
		ok     bool
	}{
		{key: "name", target: types.FieldName, ok: true},
		{key: "Business-Name", target: types.FieldBusinessName, ok: true},
		{key: "ZIP_CODE", target: types.FieldZipCode, ok: true},
		{key: "Adress", target: types.FieldAddress, ok: true},
		{key: "citty", target: types.FieldCity, ok: true},
		{key: "entity", target: types.FieldEntityType, ok: true},
		{key: "User Signed", target: types.FieldUserSigned, ok: true},
		{key: "signed_date", target: types.FieldSignedDate, ok: true},
		{key: "zip", ok: false},
		{key: "Full Name", ok: false},
		{key: "favorite color", ok: false},
		{key: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, ok := Reconcile(tt.key, types.FormFieldKeys)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.target, m.Target)
				assert.GreaterOrEqual(t, m.Score, Threshold)
			}
		})
	}
}

func TestReconcile_PicksHighestScore(t *testing.T) {
	// "name" scores 1.0 against name and lower against business_name.
	m, ok := Reconcile("Name", []string{types.FieldBusinessName, types.FieldName})
	assert.True(t, ok)
	assert.Equal(t, types.FieldName, m.Target)
	assert.Equal(t, 1.0, m.Score)
}
