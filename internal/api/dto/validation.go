package dto

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// strongPassword applies the account password policy as a validation rule.
var strongPassword = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if err := auth.CheckPasswordStrength(s); err != nil {
		return err
	}
	return nil
})

// AsDomainError converts a validation failure into a VALIDATION_FAILED error
// carrying per-field messages.
func AsDomainError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		details := make(map[string]any, len(fields))
		for name, fieldErr := range fields {
			details[name] = fieldErr.Error()
		}
		return errorutil.NewValidationError("request validation failed", details)
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return errorutil.NewInternalError(internal.InternalError())
	}
	return errorutil.NewValidationError(err.Error(), nil)
}
