package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	auditservices "github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/pkg/composables"
)

// LoanUpdate is a partial update; nil fields are left unchanged.
type LoanUpdate struct {
	ExternalID      *string
	FirstName       *string
	LastName        *string
	Purpose         *string
	Amortization    *string
	NoteAmount      *decimal.Decimal
	NoteRate        *decimal.Decimal
	TermMonths      *int
	ApplicationDate *time.Time
}

func (u LoanUpdate) Apply(l *loan.Loan) {
	if u.ExternalID != nil {
		l.ExternalID = u.ExternalID
	}
	if u.FirstName != nil {
		l.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		l.LastName = *u.LastName
	}
	if u.Purpose != nil {
		l.Purpose = *u.Purpose
	}
	if u.Amortization != nil {
		l.Amortization = *u.Amortization
	}
	if u.NoteAmount != nil {
		l.NoteAmount = u.NoteAmount
	}
	if u.NoteRate != nil {
		l.NoteRate = u.NoteRate
	}
	if u.TermMonths != nil {
		l.TermMonths = u.TermMonths
	}
	if u.ApplicationDate != nil {
		l.ApplicationDate = u.ApplicationDate
	}
}

// LoanService is the manual mutation path for loans. Every write is audited
// in the same transaction.
type LoanService struct {
	repo     loan.Repository
	recorder *auditservices.Recorder
	inTx     func(context.Context, func(context.Context) error) error
}

func NewLoanService(repo loan.Repository, recorder *auditservices.Recorder) *LoanService {
	return &LoanService{
		repo:     repo,
		recorder: recorder,
		inTx:     composables.InTx,
	}
}

func (s *LoanService) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *LoanService) List(ctx context.Context, params *loan.FindParams) ([]*loan.Loan, int64, error) {
	if params == nil {
		params = &loan.FindParams{}
	}
	loans, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return loans, count, nil
}

func (s *LoanService) Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	l.ImportSource = loan.SourceManual
	var saved *loan.Loan
	err := s.inTx(ctx, func(txCtx context.Context) error {
		var err error
		if saved, err = s.repo.Create(txCtx, l); err != nil {
			return err
		}
		return auditservices.RecordCreate(txCtx, s.recorder, LoanAuditSchema, saved, auditservices.AllFields)
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}
	return saved, nil
}

func (s *LoanService) Update(ctx context.Context, id uuid.UUID, upd LoanUpdate) (*loan.Loan, error) {
	var saved *loan.Loan
	err := s.inTx(ctx, func(txCtx context.Context) error {
		before, err := s.repo.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		after := before.Clone()
		upd.Apply(after)
		if saved, err = s.repo.Update(txCtx, after); err != nil {
			return err
		}
		return auditservices.RecordUpdate(txCtx, s.recorder, LoanAuditSchema, before, saved, auditservices.AllFields)
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}
	return saved, nil
}

func (s *LoanService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(txCtx context.Context) error {
		before, err := s.repo.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return err
		}
		return auditservices.RecordDelete(txCtx, s.recorder, LoanAuditSchema, before, auditservices.AllFields)
	})
	return classifyStorageError(err)
}
