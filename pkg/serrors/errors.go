package serrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BaseError is a sentinel error identified by its code.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

// Is matches any *BaseError with the same code.
func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap annotates the sentinel with a detail message while keeping errors.Is working.
func (e *BaseError) Wrap(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", e, msg)
	}
	return fmt.Errorf("%w: %s: %w", e, msg, cause)
}

// Code returns the code of the first BaseError in the chain, or "".
func Code(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ProcessValidatorErrors flattens validator errors into field -> message pairs.
// fieldName maps a struct field to the name exposed to clients; an empty result keeps the struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors, fieldName func(field string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		if fieldName != nil {
			if mapped := fieldName(name); mapped != "" {
				name = mapped
			}
		}
		if fe.Param() != "" {
			out[name] = fmt.Sprintf("failed on %s=%s", fe.Tag(), fe.Param())
			continue
		}
		out[name] = "failed on " + fe.Tag()
	}
	return out
}
