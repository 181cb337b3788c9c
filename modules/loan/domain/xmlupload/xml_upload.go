package xmlupload

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusError:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound     = serrors.NewError("UPLOAD_NOT_FOUND", "upload not found", "Errors.UploadNotFound")
	ErrNoFiles      = serrors.NewError("UPLOAD_NO_FILES", "no files uploaded", "Errors.UploadNoFiles")
	ErrTooManyFiles = serrors.NewError("UPLOAD_TOO_MANY_FILES", "too many files in one request", "Errors.UploadTooManyFiles")
	ErrFileTooLarge = serrors.NewError("UPLOAD_FILE_TOO_LARGE", "file exceeds the upload size limit", "Errors.UploadFileTooLarge")
)

// Upload is one submitted XML file and the state of its import job.
type Upload struct {
	ID           uuid.UUID
	FileName     string
	ContentType  string
	Size         int64
	Payload      []byte
	Status       Status
	ErrorMessage *string
	LoanID       *uuid.UUID
	Attempts     int
	UploadedAt   time.Time
	ProcessedAt  *time.Time
}

// Outcome is the final state written by a job run.
type Outcome struct {
	Status       Status
	ErrorMessage *string
	LoanID       *uuid.UUID
	Attempt      int
	FinishedAt   time.Time
}

type FindParams struct {
	Status Status
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, u *Upload) error
	GetByID(ctx context.Context, id uuid.UUID) (*Upload, error)
	// Finalize records a job outcome. A processed upload is never moved
	// back to pending or error.
	Finalize(ctx context.Context, id uuid.UUID, outcome Outcome) error
	List(ctx context.Context, params *FindParams) ([]*Upload, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
