package controllers

import (
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

const dateLayout = "2006-01-02"

type LoanDTO struct {
	ID                string            `json:"id"`
	ExternalID        *string           `json:"external_id"`
	FirstName         string            `json:"first_name"`
	LastName          string            `json:"last_name"`
	Purpose           string            `json:"purpose"`
	Amortization      string            `json:"amortization"`
	NoteAmount        *decimal.Decimal  `json:"note_amount"`
	NoteRate          *decimal.Decimal  `json:"note_rate"`
	TermMonths        *int              `json:"term_months"`
	ApplicationDate   *string           `json:"application_date"`
	Sections          loan.Sections     `json:"sections,omitempty"`
	CoercionFallbacks map[string]string `json:"coercion_fallbacks,omitempty"`
	ImportSource      string            `json:"import_source"`
	ImportedAt        *time.Time        `json:"imported_at"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type LoanListResponse struct {
	Items []LoanDTO `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

func toLoanDTO(l *loan.Loan) LoanDTO {
	dto := LoanDTO{
		ID:                l.ID.String(),
		ExternalID:        l.ExternalID,
		FirstName:         l.FirstName,
		LastName:          l.LastName,
		Purpose:           l.Purpose,
		Amortization:      l.Amortization,
		NoteAmount:        l.NoteAmount,
		NoteRate:          l.NoteRate,
		TermMonths:        l.TermMonths,
		Sections:          l.Sections,
		CoercionFallbacks: l.CoercionFallbacks,
		ImportSource:      string(l.ImportSource),
		ImportedAt:        l.ImportedAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	if l.ApplicationDate != nil {
		s := l.ApplicationDate.Format(dateLayout)
		dto.ApplicationDate = &s
	}
	return dto
}

type CreateLoanDTO struct {
	ExternalID      *string          `json:"external_id" validate:"omitempty,min=1,max=255"`
	FirstName       string           `json:"first_name" validate:"max=255"`
	LastName        string           `json:"last_name" validate:"max=255"`
	Purpose         string           `json:"purpose" validate:"max=64"`
	Amortization    string           `json:"amortization" validate:"max=64"`
	NoteAmount      *decimal.Decimal `json:"note_amount"`
	NoteRate        *decimal.Decimal `json:"note_rate"`
	TermMonths      *int             `json:"term_months" validate:"omitempty,min=1,max=600"`
	ApplicationDate *string          `json:"application_date" validate:"omitempty,datetime=2006-01-02"`
}

func (d *CreateLoanDTO) ToEntity() (*loan.Loan, error) {
	if err := checkAmounts(d.NoteAmount, d.NoteRate); err != nil {
		return nil, err
	}
	l := &loan.Loan{
		ExternalID:   d.ExternalID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Purpose:      d.Purpose,
		Amortization: d.Amortization,
		NoteAmount:   d.NoteAmount,
		NoteRate:     d.NoteRate,
		TermMonths:   d.TermMonths,
	}
	if d.ApplicationDate != nil {
		t, err := time.Parse(dateLayout, *d.ApplicationDate)
		if err != nil {
			return nil, serrors.ValidationErrors{"application_date": "expected YYYY-MM-DD"}
		}
		l.ApplicationDate = &t
	}
	return l, nil
}

// UpdateLoanDTO is a partial update; omitted fields keep their value.
type UpdateLoanDTO struct {
	ExternalID      *string          `json:"external_id" validate:"omitempty,min=1,max=255"`
	FirstName       *string          `json:"first_name" validate:"omitempty,max=255"`
	LastName        *string          `json:"last_name" validate:"omitempty,max=255"`
	Purpose         *string          `json:"purpose" validate:"omitempty,max=64"`
	Amortization    *string          `json:"amortization" validate:"omitempty,max=64"`
	NoteAmount      *decimal.Decimal `json:"note_amount"`
	NoteRate        *decimal.Decimal `json:"note_rate"`
	TermMonths      *int             `json:"term_months" validate:"omitempty,min=1,max=600"`
	ApplicationDate *string          `json:"application_date" validate:"omitempty,datetime=2006-01-02"`
}

func (d *UpdateLoanDTO) ToUpdate() (services.LoanUpdate, error) {
	if err := checkAmounts(d.NoteAmount, d.NoteRate); err != nil {
		return services.LoanUpdate{}, err
	}
	upd := services.LoanUpdate{
		ExternalID:   d.ExternalID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Purpose:      d.Purpose,
		Amortization: d.Amortization,
		NoteAmount:   d.NoteAmount,
		NoteRate:     d.NoteRate,
		TermMonths:   d.TermMonths,
	}
	if d.ApplicationDate != nil {
		t, err := time.Parse(dateLayout, *d.ApplicationDate)
		if err != nil {
			return services.LoanUpdate{}, serrors.ValidationErrors{"application_date": "expected YYYY-MM-DD"}
		}
		upd.ApplicationDate = &t
	}
	return upd, nil
}

func checkAmounts(amount, rate *decimal.Decimal) error {
	errs := serrors.ValidationErrors{}
	switch {
	case amount == nil:
	case amount.IsNegative():
		errs["note_amount"] = "must not be negative"
	case !loan.NoteAmountFits(*amount):
		errs["note_amount"] = "out of range"
	}
	switch {
	case rate == nil:
	case rate.IsNegative():
		errs["note_rate"] = "must not be negative"
	case !loan.NoteRateFits(*rate):
		errs["note_rate"] = "out of range"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// jsonFieldName maps a struct field of v to its json name for validation output.
func jsonFieldName(v any) func(string) string {
	t := reflect.TypeOf(v)
	return func(field string) string {
		sf, ok := t.FieldByName(field)
		if !ok {
			return ""
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		return name
	}
}

type UploadDTO struct {
	ID           string     `json:"id"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	Size         int64      `json:"size"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message"`
	LoanID       *string    `json:"loan_id"`
	Attempts     int        `json:"attempts"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

type UploadListResponse struct {
	Items []UploadDTO `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func toUploadDTO(u *xmlupload.Upload) UploadDTO {
	dto := UploadDTO{
		ID:           u.ID.String(),
		FileName:     u.FileName,
		ContentType:  u.ContentType,
		Size:         u.Size,
		Status:       string(u.Status),
		ErrorMessage: u.ErrorMessage,
		Attempts:     u.Attempts,
		UploadedAt:   u.UploadedAt,
		ProcessedAt:  u.ProcessedAt,
	}
	if u.LoanID != nil {
		s := u.LoanID.String()
		dto.LoanID = &s
	}
	return dto
}
