package loan

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceManual Source = "manual"
	SourceXML    Source = "xml"
)

// Precision and scale of the NUMERIC columns backing NoteAmount and NoteRate.
const (
	NoteAmountPrecision, NoteAmountScale int32 = 15, 2
	NoteRatePrecision, NoteRateScale     int32 = 9, 4
)

// FitsNumeric reports whether d is storable in NUMERIC(precision, scale).
// Extra fractional digits are rounded by the database, so only the integer
// part after rounding is bounded.
func FitsNumeric(d decimal.Decimal, precision, scale int32) bool {
	return d.Round(scale).Abs().LessThan(decimal.New(1, precision-scale))
}

func NoteAmountFits(d decimal.Decimal) bool {
	return FitsNumeric(d, NoteAmountPrecision, NoteAmountScale)
}

func NoteRateFits(d decimal.Decimal) bool {
	return FitsNumeric(d, NoteRatePrecision, NoteRateScale)
}

// TermMonthsFits reports whether n fits the INT term_months column.
func TermMonthsFits(n int64) bool {
	return n >= math.MinInt32 && n <= math.MaxInt32
}

// Sections holds the repeated records of an import by section name
// (borrowers, assets, liabilities).
type Sections map[string][]map[string]any

// Loan is the persisted loan record. ExternalID is set for imported loans and
// unique across the table.
type Loan struct {
	ID                uuid.UUID
	ExternalID        *string
	FirstName         string
	LastName          string
	Purpose           string
	Amortization      string
	NoteAmount        *decimal.Decimal
	NoteRate          *decimal.Decimal
	TermMonths        *int
	ApplicationDate   *time.Time
	Sections          Sections
	CoercionFallbacks map[string]string
	RawXML            string
	ImportSource      Source
	ImportedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy, used for before-images.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	out := *l
	if l.ExternalID != nil {
		v := *l.ExternalID
		out.ExternalID = &v
	}
	if l.NoteAmount != nil {
		v := *l.NoteAmount
		out.NoteAmount = &v
	}
	if l.NoteRate != nil {
		v := *l.NoteRate
		out.NoteRate = &v
	}
	if l.TermMonths != nil {
		v := *l.TermMonths
		out.TermMonths = &v
	}
	if l.ApplicationDate != nil {
		v := *l.ApplicationDate
		out.ApplicationDate = &v
	}
	if l.ImportedAt != nil {
		v := *l.ImportedAt
		out.ImportedAt = &v
	}
	if l.CoercionFallbacks != nil {
		out.CoercionFallbacks = make(map[string]string, len(l.CoercionFallbacks))
		for k, v := range l.CoercionFallbacks {
			out.CoercionFallbacks[k] = v
		}
	}
	if l.Sections != nil {
		out.Sections = make(Sections, len(l.Sections))
		for name, records := range l.Sections {
			cp := make([]map[string]any, len(records))
			for i, rec := range records {
				m := make(map[string]any, len(rec))
				for k, v := range rec {
					m[k] = v
				}
				cp[i] = m
			}
			out.Sections[name] = cp
		}
	}
	return &out
}

type FindParams struct {
	ExternalID string
	Source     Source
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error)
	// GetByExternalIDForUpdate locks the row until the surrounding
	// transaction ends.
	GetByExternalIDForUpdate(ctx context.Context, externalID string) (*Loan, error)
	// Upsert inserts l or overwrites the row with the same external id.
	Upsert(ctx context.Context, l *Loan) (saved *Loan, inserted bool, err error)
	Create(ctx context.Context, l *Loan) (*Loan, error)
	Update(ctx context.Context, l *Loan) (*Loan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params *FindParams) ([]*Loan, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
