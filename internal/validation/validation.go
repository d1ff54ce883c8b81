package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so errors match the input the caller sent.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// FieldError describes one field that failed validation.
type FieldError struct {
	Field string      `json:"field"`
	Tag   string      `json:"tag"`
	Param string      `json:"param,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// Message renders the failure in a human-readable form.
func (f FieldError) Message() string {
	switch f.Tag {
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", f.Field, f.Param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f.Field, f.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", f.Field, f.Param)
	case "required":
		return fmt.Sprintf("%s is required", f.Field)
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", f.Field, f.Tag)
	}
}

// Errors is the list of field failures for one struct.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, f := range e {
		msgs = append(msgs, f.Message())
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a struct using go-playground/validator.
// Field failures are returned as Errors.
func ValidateStruct(s interface{}) error {
	if s == nil {
		return nil
	}

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validator: expected a struct, got %T", s)
	}

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make(Errors, 0, len(ve))
		for _, e := range ve {
			out = append(out, FieldError{
				Field: e.Field(),
				Tag:   e.Tag(),
				Param: e.Param(),
				Value: e.Value(),
			})
		}
		return out
	}
	return fmt.Errorf("validation failed: %w", err)
}

// Fields extracts the field failures from err, if any.
func Fields(err error) []FieldError {
	var fe Errors
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}
