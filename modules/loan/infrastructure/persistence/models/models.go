package models

import (
	"time"

	"github.com/google/uuid"
)

type Loan struct {
	ID                uuid.UUID
	ExternalID        *string
	FirstName         string
	LastName          string
	Purpose           string
	Amortization      string
	NoteAmount        *string
	NoteRate          *string
	TermMonths        *int32
	ApplicationDate   *time.Time
	Sections          []byte
	CoercionFallbacks []byte
	RawXML            string
	ImportSource      string
	ImportedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type XMLUpload struct {
	ID           uuid.UUID
	FileName     string
	ContentType  string
	Size         int64
	Payload      []byte
	Status       string
	ErrorMessage *string
	LoanID       *uuid.UUID
	Attempts     int32
	UploadedAt   time.Time
	ProcessedAt  *time.Time
}
