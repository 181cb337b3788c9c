package loan

import (
	"github.com/iota-uz/loan-sdk/pkg/serrors"
	"github.com/iota-uz/loan-sdk/pkg/xmlspec"
)

var (
	// ErrMalformedDocument: the payload is not well-formed XML.
	ErrMalformedDocument = xmlspec.ErrMalformedDocument
	// ErrMissingRequiredField: the document has no external identifier.
	ErrMissingRequiredField = serrors.NewError("MISSING_REQUIRED_FIELD", "required field is missing", "Errors.MissingRequiredField")
	// ErrTransientIO: a connectivity-class failure; the import may succeed on retry.
	ErrTransientIO = serrors.NewError("TRANSIENT_IO", "transient storage failure", "Errors.TransientIO")
	// ErrConstraintViolation: a concurrent import won the race on external_id.
	ErrConstraintViolation = serrors.NewError("CONSTRAINT_VIOLATION", "constraint violation", "Errors.ConstraintViolation")
	ErrNotFound            = serrors.NewError("LOAN_NOT_FOUND", "loan not found", "Errors.LoanNotFound")
)
