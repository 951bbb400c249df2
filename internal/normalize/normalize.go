package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/taxform-extractor/internal/schemas"
	"github.com/jonathan/taxform-extractor/internal/types"
)

// signedValues are the user_signed inputs that mean "signed".
var signedValues = map[string]bool{
	"yes":    true,
	"y":      true,
	"signed": true,
	"true":   true,
}

// Normalizer reconciles raw model output with the fixed form schema.
type Normalizer struct {
	keepExtras bool
	logger     *slog.Logger
}

// NewNormalizer creates a Normalizer. With keepExtras, keys that match no
// schema field are kept in FormRecord.Extras instead of being dropped.
func NewNormalizer(keepExtras bool, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{keepExtras: keepExtras, logger: logger}
}

// Normalize maps raw keys onto the schema, checks value types and
// normalizes user_signed. Type violations return *ValidationError.
func (n *Normalizer) Normalize(raw RawFieldMap) (*types.FormRecord, error) {
	reconciled := make(map[string]any, len(types.FormFieldKeys))
	extras := make(map[string]any)

	for _, f := range raw {
		m, ok := Reconcile(f.Key, types.FormFieldKeys)
		if !ok {
			n.logger.Debug("normalize.key.dropped", "key", f.Key, "kept_as_extra", n.keepExtras)
			if n.keepExtras {
				extras[f.Key] = f.Value
			}
			continue
		}
		if m.Target != f.Key {
			n.logger.Debug("normalize.key.mapped", "key", f.Key, "target", m.Target, "score", m.Score)
		}
		// last write wins
		reconciled[m.Target] = f.Value
	}

	if err := schemas.ValidateFormRecord(reconciled); err != nil {
		return nil, &ValidationError{Message: "model output does not fit the form schema", Cause: err}
	}

	// user_signed is always "Y" or "", even when the model left it out
	record := &types.FormRecord{UserSigned: types.StringPtr(NormalizeSigned(reconciled[types.FieldUserSigned]))}
	for key, value := range reconciled {
		if key == types.FieldUserSigned {
			continue
		}
		if value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("field %s is not a string", key)}
		}
		if err := record.Set(key, &s); err != nil {
			return nil, &ValidationError{Message: "unexpected field", Cause: err}
		}
	}
	if len(extras) > 0 {
		record.Extras = extras
	}

	if err := record.Validate(); err != nil {
		return nil, &ValidationError{Message: "record failed validation", Cause: err}
	}

	return record, nil
}

// NormalizeSigned maps a user_signed value to "Y" or "".
func NormalizeSigned(value any) string {
	var s string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		s = v
	case bool:
		if v {
			s = "true"
		}
	case json.Number:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}

	if signedValues[strings.ToLower(strings.TrimSpace(s))] {
		return types.SignedYes
	}
	return ""
}
