package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/resilience-core/errors"
)

// Validator collects field errors.
type Validator struct {
	errors []FieldError
}

// FieldError is a validation failure for one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a Validator.
func New() *Validator {
	return &Validator{errors: make([]FieldError, 0)}
}

// AddError records a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any error was recorded.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the recorded errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_INPUT AppError listing every field error, or nil.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	return invalid(v.errors)
}

// Required checks that value is not blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// RequiredUUID checks that value is a non-nil UUID.
func (v *Validator) RequiredUUID(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
		return v
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		v.AddError(field, "must be a valid UUID")
		return v
	}
	if parsed == uuid.Nil {
		v.AddError(field, "must not be empty")
	}
	return v
}

// MaxLength checks that value is at most maxLen bytes.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be %d characters or less", maxLen))
	}
	return v
}

// Range checks that value is within [minVal, maxVal].
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
	return v
}

// OneOf checks that a non-empty value is one of allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom records message for field unless condition holds.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}

func invalid(fields []FieldError) *errors.AppError {
	messages := make([]string, len(fields))
	for i, e := range fields {
		messages[i] = e.Field + ": " + e.Message
	}
	appErr := errors.New(errors.ErrCodeInvalidInput, strings.Join(messages, "; "), http.StatusBadRequest)
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}
