package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func requestMeta(r *http.Request) map[string]string {
	if r == nil {
		return nil
	}
	if params, ok := composables.UseParams(r.Context()); ok && params.RequestID != "" {
		return map[string]string{"request_id": params.RequestID}
	}
	return nil
}

// WriteValidationError renders validator errors as a field map with status 400.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error, fieldName func(string) string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), requestMeta(r))
	}
	return WriteJSON(w, http.StatusBadRequest, &ErrorEnvelope{
		Code:    "VALIDATION_FAILED",
		Message: "validation failed",
		Meta:    requestMeta(r),
		Fields:  serrors.ProcessValidatorErrors(verrs, fieldName),
	})
}

// StatusMapper maps a domain error to an HTTP status; ok=false means unknown.
type StatusMapper func(err error) (status int, ok bool)

// WriteServiceError renders err using the first mapper that recognises it.
// Unrecognised errors become 500 with a generic message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, mappers ...StatusMapper) error {
	for _, m := range mappers {
		if status, ok := m(err); ok {
			code := serrors.Code(err)
			if code == "" {
				code = http.StatusText(status)
			}
			return WriteError(w, status, code, err.Error(), requestMeta(r))
		}
	}
	if r != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("unhandled service error")
	}
	return WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", requestMeta(r))
}
