package validation

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/resilience-core/outbox"
)

var (
	validate *validator.Validate
	once     sync.Once

	dedupeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:/@-]{1,255}$`)
	tenantIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})
		_ = validate.RegisterValidation("dedupe_key", func(fl validator.FieldLevel) bool {
			return dedupeKeyPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("tenant_id", func(fl validator.FieldLevel) bool {
			return tenantIDPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("outbox_kind", func(fl validator.FieldLevel) bool {
			return outbox.Kind(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate checks s against its `validate` struct tags.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return invalid([]FieldError{{Field: "body", Message: "validation failed"}})
	}
	fields := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, FieldError{Field: e.Field(), Message: formatValidationError(e)})
	}
	return invalid(fields)
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "dedupe_key":
		return "must be 1-255 characters of letters, digits and ._:/@-"
	case "tenant_id":
		return "must be 1-128 characters of letters, digits, _ and -"
	case "outbox_kind":
		kinds := make([]string, len(outbox.Kinds))
		for i, k := range outbox.Kinds {
			kinds[i] = string(k)
		}
		return "must be one of: " + strings.Join(kinds, ", ")
	default:
		return "is invalid"
	}
}

func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
