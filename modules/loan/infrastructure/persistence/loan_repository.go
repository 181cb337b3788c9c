package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence/models"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/repo"
)

const (
	loanColumns = `id, external_id, first_name, last_name, purpose, amortization,
		note_amount::text, note_rate::text, term_months, application_date,
		sections, coercion_fallbacks, raw_xml, import_source, imported_at,
		created_at, updated_at`

	selectLoanQuery = `SELECT ` + loanColumns + ` FROM loans`

	insertLoanQuery = `
		INSERT INTO loans (
			id, external_id, first_name, last_name, purpose, amortization,
			note_amount, note_rate, term_months, application_date,
			sections, coercion_fallbacks, raw_xml, import_source, imported_at,
			created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)`

	upsertLoanQuery = insertLoanQuery + `
		ON CONFLICT (external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			purpose = EXCLUDED.purpose,
			amortization = EXCLUDED.amortization,
			note_amount = EXCLUDED.note_amount,
			note_rate = EXCLUDED.note_rate,
			term_months = EXCLUDED.term_months,
			application_date = EXCLUDED.application_date,
			sections = EXCLUDED.sections,
			coercion_fallbacks = EXCLUDED.coercion_fallbacks,
			raw_xml = EXCLUDED.raw_xml,
			import_source = EXCLUDED.import_source,
			imported_at = EXCLUDED.imported_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + loanColumns + `, (xmax = 0) AS inserted`

	updateLoanQuery = `
		UPDATE loans SET
			external_id = $2,
			first_name = $3,
			last_name = $4,
			purpose = $5,
			amortization = $6,
			note_amount = $7::text::numeric,
			note_rate = $8::text::numeric,
			term_months = $9,
			application_date = $10,
			sections = $11,
			coercion_fallbacks = $12,
			updated_at = $13
		WHERE id = $1
		RETURNING ` + loanColumns

	deleteLoanQuery = `DELETE FROM loans WHERE id = $1`
)

type LoanRepository struct{}

func NewLoanRepository() loan.Repository {
	return &LoanRepository{}
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	l, err := scanLoan(tx.QueryRow(ctx, selectLoanQuery+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "get loan %s", id)
	}
	return l, nil
}

func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	l, err := scanLoan(tx.QueryRow(ctx, selectLoanQuery+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "lock loan %s", id)
	}
	return l, nil
}

func (r *LoanRepository) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	l, err := scanLoan(tx.QueryRow(ctx, selectLoanQuery+` WHERE external_id = $1 FOR UPDATE`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "lock loan %q", externalID)
	}
	return l, nil
}

func (r *LoanRepository) Upsert(ctx context.Context, l *loan.Loan) (*loan.Loan, bool, error) {
	if l.ExternalID == nil || *l.ExternalID == "" {
		return nil, false, loan.ErrMissingRequiredField
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, gerrors.Wrap(err, "get transaction")
	}
	row, err := r.prepare(l)
	if err != nil {
		return nil, false, err
	}

	var inserted bool
	saved, err := scanLoan(tx.QueryRow(ctx, upsertLoanQuery, insertArgs(row)...), &inserted)
	if err != nil {
		return nil, false, gerrors.Wrapf(err, "upsert loan %q", *l.ExternalID)
	}
	return saved, inserted, nil
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	row, err := r.prepare(l)
	if err != nil {
		return nil, err
	}
	saved, err := scanLoan(tx.QueryRow(ctx, insertLoanQuery+` RETURNING `+loanColumns, insertArgs(row)...))
	if err != nil {
		return nil, gerrors.Wrap(err, "insert loan")
	}
	return saved, nil
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	l.UpdatedAt = time.Now().UTC()
	row, err := toDBLoan(l)
	if err != nil {
		return nil, err
	}
	saved, err := scanLoan(tx.QueryRow(ctx, updateLoanQuery,
		row.ID,
		row.ExternalID,
		row.FirstName,
		row.LastName,
		row.Purpose,
		row.Amortization,
		row.NoteAmount,
		row.NoteRate,
		row.TermMonths,
		row.ApplicationDate,
		row.Sections,
		row.CoercionFallbacks,
		row.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "update loan %s", l.ID)
	}
	return saved, nil
}

func (r *LoanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "get transaction")
	}
	tag, err := tx.Exec(ctx, deleteLoanQuery, id)
	if err != nil {
		return gerrors.Wrapf(err, "delete loan %s", id)
	}
	if tag.RowsAffected() == 0 {
		return loan.ErrNotFound
	}
	return nil
}

func (r *LoanRepository) List(ctx context.Context, params *loan.FindParams) ([]*loan.Loan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	where, args := buildLoanFilters(params)
	query := selectLoanQuery
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "query loans")
	}
	defer rows.Close()

	var out []*loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan loan")
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate loans")
	}
	return out, nil
}

func (r *LoanRepository) Count(ctx context.Context, params *loan.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, gerrors.Wrap(err, "get transaction")
	}
	where, args := buildLoanFilters(params)
	query := `SELECT COUNT(*) FROM loans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var count int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, gerrors.Wrap(err, "count loans")
	}
	return count, nil
}

func (r *LoanRepository) prepare(l *loan.Loan) (*models.Loan, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	return toDBLoan(l)
}

func insertArgs(row *models.Loan) []any {
	return []any{
		row.ID,
		row.ExternalID,
		row.FirstName,
		row.LastName,
		row.Purpose,
		row.Amortization,
		row.NoteAmount,
		row.NoteRate,
		row.TermMonths,
		row.ApplicationDate,
		row.Sections,
		row.CoercionFallbacks,
		row.RawXML,
		row.ImportSource,
		row.ImportedAt,
		row.CreatedAt,
		row.UpdatedAt,
	}
}

// scanLoan reads one loanColumns row. extra receives any trailing columns.
func scanLoan(row pgx.Row, extra ...any) (*loan.Loan, error) {
	var m models.Loan
	dest := []any{
		&m.ID,
		&m.ExternalID,
		&m.FirstName,
		&m.LastName,
		&m.Purpose,
		&m.Amortization,
		&m.NoteAmount,
		&m.NoteRate,
		&m.TermMonths,
		&m.ApplicationDate,
		&m.Sections,
		&m.CoercionFallbacks,
		&m.RawXML,
		&m.ImportSource,
		&m.ImportedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return toDomainLoan(&m)
}

func buildLoanFilters(params *loan.FindParams) ([]string, []any) {
	if params == nil {
		return nil, nil
	}
	var where []string
	var args []any
	if ext := strings.TrimSpace(params.ExternalID); ext != "" {
		args = append(args, ext)
		where = append(where, fmt.Sprintf("external_id = $%d", len(args)))
	}
	if params.Source != "" {
		args = append(args, string(params.Source))
		where = append(where, fmt.Sprintf("import_source = $%d", len(args)))
	}
	return where, args
}
