package persistence

import (
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence/models"
)

func toDBLoan(l *loan.Loan) (*models.Loan, error) {
	sections := l.Sections
	if sections == nil {
		sections = loan.Sections{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return nil, gerrors.Wrap(err, "marshal sections")
	}
	fallbacks := l.CoercionFallbacks
	if fallbacks == nil {
		fallbacks = map[string]string{}
	}
	fallbacksJSON, err := json.Marshal(fallbacks)
	if err != nil {
		return nil, gerrors.Wrap(err, "marshal coercion fallbacks")
	}

	row := &models.Loan{
		ID:                l.ID,
		ExternalID:        l.ExternalID,
		FirstName:         l.FirstName,
		LastName:          l.LastName,
		Purpose:           l.Purpose,
		Amortization:      l.Amortization,
		NoteAmount:        decimalText(l.NoteAmount),
		NoteRate:          decimalText(l.NoteRate),
		ApplicationDate:   l.ApplicationDate,
		Sections:          sectionsJSON,
		CoercionFallbacks: fallbacksJSON,
		RawXML:            l.RawXML,
		ImportSource:      string(l.ImportSource),
		ImportedAt:        l.ImportedAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	if row.ImportSource == "" {
		row.ImportSource = string(loan.SourceManual)
	}
	if l.TermMonths != nil {
		v := int32(*l.TermMonths)
		row.TermMonths = &v
	}
	return row, nil
}

func toDomainLoan(row *models.Loan) (*loan.Loan, error) {
	l := &loan.Loan{
		ID:              row.ID,
		ExternalID:      row.ExternalID,
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		Purpose:         row.Purpose,
		Amortization:    row.Amortization,
		ApplicationDate: row.ApplicationDate,
		RawXML:          row.RawXML,
		ImportSource:    loan.Source(row.ImportSource),
		ImportedAt:      row.ImportedAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	var err error
	if l.NoteAmount, err = parseDecimal(row.NoteAmount); err != nil {
		return nil, gerrors.Wrap(err, "note_amount")
	}
	if l.NoteRate, err = parseDecimal(row.NoteRate); err != nil {
		return nil, gerrors.Wrap(err, "note_rate")
	}
	if row.TermMonths != nil {
		v := int(*row.TermMonths)
		l.TermMonths = &v
	}
	if len(row.Sections) > 0 {
		if err := json.Unmarshal(row.Sections, &l.Sections); err != nil {
			return nil, gerrors.Wrap(err, "unmarshal sections")
		}
	}
	if len(row.CoercionFallbacks) > 0 {
		if err := json.Unmarshal(row.CoercionFallbacks, &l.CoercionFallbacks); err != nil {
			return nil, gerrors.Wrap(err, "unmarshal coercion fallbacks")
		}
	}
	return l, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toDBUpload(u *xmlupload.Upload) *models.XMLUpload {
	return &models.XMLUpload{
		ID:           u.ID,
		FileName:     u.FileName,
		ContentType:  u.ContentType,
		Size:         u.Size,
		Payload:      u.Payload,
		Status:       string(u.Status),
		ErrorMessage: u.ErrorMessage,
		LoanID:       u.LoanID,
		Attempts:     int32(u.Attempts),
		UploadedAt:   u.UploadedAt,
		ProcessedAt:  u.ProcessedAt,
	}
}

func toDomainUpload(row *models.XMLUpload) *xmlupload.Upload {
	return &xmlupload.Upload{
		ID:           row.ID,
		FileName:     row.FileName,
		ContentType:  row.ContentType,
		Size:         row.Size,
		Payload:      row.Payload,
		Status:       xmlupload.Status(row.Status),
		ErrorMessage: row.ErrorMessage,
		LoanID:       row.LoanID,
		Attempts:     int(row.Attempts),
		UploadedAt:   row.UploadedAt,
		ProcessedAt:  row.ProcessedAt,
	}
}
