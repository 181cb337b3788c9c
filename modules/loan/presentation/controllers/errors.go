package controllers

import (
	"errors"
	"net/http"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/pkg/httpapi"
	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

func loanStatus(err error) (int, bool) {
	var verrs serrors.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, true
	case errors.Is(err, loan.ErrNotFound), errors.Is(err, xmlupload.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, loan.ErrConstraintViolation):
		return http.StatusConflict, true
	case errors.Is(err, loan.ErrTransientIO):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, xmlupload.ErrNoFiles), errors.Is(err, xmlupload.ErrTooManyFiles):
		return http.StatusBadRequest, true
	case errors.Is(err, xmlupload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, true
	}
	return 0, false
}

var _ httpapi.StatusMapper = loanStatus

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs serrors.ValidationErrors
	if errors.As(err, &verrs) {
		_ = httpapi.WriteJSON(w, http.StatusBadRequest, &httpapi.ErrorEnvelope{
			Code:    "VALIDATION_FAILED",
			Message: "validation failed",
			Fields:  verrs,
		})
		return
	}
	_ = httpapi.WriteServiceError(w, r, err, loanStatus)
}
