package handlers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse is one rejected field.
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestValidationError lists every field that failed validation.
type RequestValidationError struct {
	Fields []ValidationErrorResponse
}

func (e *RequestValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Details is the text reported to clients.
func (e *RequestValidationError) Details() string {
	return strings.TrimPrefix(e.Error(), "validation failed: ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateRequest validates req with go-playground/validator. Failures are
// returned as *RequestValidationError.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := &RequestValidationError{Fields: make([]ValidationErrorResponse, 0, len(ve))}
	for _, fe := range ve {
		out.Fields = append(out.Fields, ValidationErrorResponse{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return out
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
