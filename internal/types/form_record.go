package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Field keys of the fixed W-9 schema, in prompt order.
const (
	FieldEntityType   = "entity_type"
	FieldName         = "name"
	FieldBusinessName = "business_name"
	FieldEIN          = "ein"
	FieldSSN          = "ssn"
	FieldAddress      = "address"
	FieldCity         = "city"
	FieldState        = "state"
	FieldZipCode      = "zip_code"
	FieldUserSigned   = "user_signed"
	FieldSignedDate   = "signed_date"
)

// FormFieldKeys lists the fixed schema keys in prompt order.
var FormFieldKeys = []string{
	FieldEntityType,
	FieldName,
	FieldBusinessName,
	FieldEIN,
	FieldSSN,
	FieldAddress,
	FieldCity,
	FieldState,
	FieldZipCode,
	FieldUserSigned,
	FieldSignedDate,
}

// SignedYes is the only non-empty value user_signed may hold.
const SignedYes = "Y"

// FormRecord is the validated set of W-9 fields extracted from one document.
// A nil field means the key was absent from the model output.
type FormRecord struct {
	EntityType   *string `json:"entity_type"`
	Name         *string `json:"name"`
	BusinessName *string `json:"business_name"`
	EIN          *string `json:"ein"`
	SSN          *string `json:"ssn"`
	Address      *string `json:"address"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	ZipCode      *string `json:"zip_code"`
	UserSigned   *string `json:"user_signed" validate:"omitnil,signed"`
	SignedDate   *string `json:"signed_date"`

	// Extras holds keys that could not be mapped onto the fixed schema.
	// Only populated when the normalizer retains extras.
	Extras map[string]any `json:"-"`
}

// field returns the address of the struct field backing key.
func (r *FormRecord) field(key string) **string {
	switch key {
	case FieldEntityType:
		return &r.EntityType
	case FieldName:
		return &r.Name
	case FieldBusinessName:
		return &r.BusinessName
	case FieldEIN:
		return &r.EIN
	case FieldSSN:
		return &r.SSN
	case FieldAddress:
		return &r.Address
	case FieldCity:
		return &r.City
	case FieldState:
		return &r.State
	case FieldZipCode:
		return &r.ZipCode
	case FieldUserSigned:
		return &r.UserSigned
	case FieldSignedDate:
		return &r.SignedDate
	default:
		return nil
	}
}

// Set assigns a fixed field. It returns an error for keys outside the schema.
func (r *FormRecord) Set(key string, value *string) error {
	f := r.field(key)
	if f == nil {
		return fmt.Errorf("unknown form field: %s", key)
	}
	*f = value
	return nil
}

// Get returns the value of a fixed field and whether it is present.
func (r *FormRecord) Get(key string) (string, bool) {
	f := r.field(key)
	if f == nil || *f == nil {
		return "", false
	}
	return **f, true
}

// Validate validates the FormRecord using the validator.
func (r *FormRecord) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("signed", validateSigned); err != nil {
		return err
	}
	return validate.Struct(r)
}

// validateSigned accepts "" and "Y".
func validateSigned(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || s == SignedYes
}

// MarshalJSON emits every fixed key (null when absent) with extras inlined.
// Fixed keys take precedence over extras with the same name.
func (r FormRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(FormFieldKeys)+len(r.Extras))
	for k, v := range r.Extras {
		out[k] = v
	}
	for _, key := range FormFieldKeys {
		if v, ok := r.Get(key); ok {
			out[key] = v
		} else {
			out[key] = nil
		}
	}
	return json.Marshal(out)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
