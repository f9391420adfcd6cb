package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/go-playground/validator/v10"
)

// ValidationError reports the first failing field of a request DTO
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := models.RegisterDisplayNameValidation(v); err != nil {
		panic(err)
	}
	// an empty avatar clears it; omitempty alone does not skip a non-nil *string
	v.RegisterAlias("avatarurl", "max=2048,http_url|len=0")
	return v
}

// ValidateRequest validates a request struct using go-playground/validator.
// It returns a *ValidationError naming the first failing field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &ValidationError{
			Field:   ve[0].Field(),
			Message: formatValidationError(ve[0]),
		}
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "avatarurl":
		return "must be an http or https URL of at most 2048 characters"
	case "displayname":
		return "may contain letters, digits, spaces and . _ ' -"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
