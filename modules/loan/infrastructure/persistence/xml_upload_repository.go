package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence/models"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/repo"
)

const (
	uploadColumns = `id, file_name, content_type, size, payload, status,
		error_message, loan_id, attempts, uploaded_at, processed_at`

	insertUploadQuery = `
		INSERT INTO xml_uploads (` + uploadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	// A processed upload is terminal; a later failure of a duplicate
	// delivery must not overwrite it.
	finalizeUploadQuery = `
		UPDATE xml_uploads SET
			status = $2,
			error_message = $3,
			loan_id = COALESCE($4, loan_id),
			attempts = GREATEST(attempts, $5),
			processed_at = $6
		WHERE id = $1 AND status <> 'processed'`
)

type XMLUploadRepository struct{}

func NewXMLUploadRepository() xmlupload.Repository {
	return &XMLUploadRepository{}
}

func (r *XMLUploadRepository) Create(ctx context.Context, u *xmlupload.Upload) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "get transaction")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	if u.Status == "" {
		u.Status = xmlupload.StatusPending
	}
	row := toDBUpload(u)
	if _, err := tx.Exec(ctx, insertUploadQuery,
		row.ID,
		row.FileName,
		row.ContentType,
		row.Size,
		row.Payload,
		row.Status,
		row.ErrorMessage,
		row.LoanID,
		row.Attempts,
		row.UploadedAt,
		row.ProcessedAt,
	); err != nil {
		return gerrors.Wrap(err, "insert upload")
	}
	return nil
}

func (r *XMLUploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*xmlupload.Upload, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	u, err := scanUpload(tx.QueryRow(ctx, `SELECT `+uploadColumns+` FROM xml_uploads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xmlupload.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "get upload %s", id)
	}
	return u, nil
}

func (r *XMLUploadRepository) Finalize(ctx context.Context, id uuid.UUID, outcome xmlupload.Outcome) error {
	if !outcome.Status.Valid() || outcome.Status == xmlupload.StatusPending {
		return gerrors.Errorf("invalid final status %q", outcome.Status)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "get transaction")
	}
	finishedAt := outcome.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, finalizeUploadQuery,
		id,
		string(outcome.Status),
		outcome.ErrorMessage,
		outcome.LoanID,
		int32(outcome.Attempt),
		finishedAt,
	); err != nil {
		return gerrors.Wrapf(err, "finalize upload %s", id)
	}
	return nil
}

func (r *XMLUploadRepository) List(ctx context.Context, params *xmlupload.FindParams) ([]*xmlupload.Upload, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "get transaction")
	}
	where, args := buildUploadFilters(params)
	query := `SELECT ` + uploadColumns + ` FROM xml_uploads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uploaded_at DESC, id"
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "query uploads")
	}
	defer rows.Close()

	var out []*xmlupload.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "scan upload")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate uploads")
	}
	return out, nil
}

func (r *XMLUploadRepository) Count(ctx context.Context, params *xmlupload.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, gerrors.Wrap(err, "get transaction")
	}
	where, args := buildUploadFilters(params)
	query := `SELECT COUNT(*) FROM xml_uploads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var count int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, gerrors.Wrap(err, "count uploads")
	}
	return count, nil
}

func scanUpload(row pgx.Row) (*xmlupload.Upload, error) {
	var m models.XMLUpload
	if err := row.Scan(
		&m.ID,
		&m.FileName,
		&m.ContentType,
		&m.Size,
		&m.Payload,
		&m.Status,
		&m.ErrorMessage,
		&m.LoanID,
		&m.Attempts,
		&m.UploadedAt,
		&m.ProcessedAt,
	); err != nil {
		return nil, err
	}
	return toDomainUpload(&m), nil
}

func buildUploadFilters(params *xmlupload.FindParams) ([]string, []any) {
	if params == nil || params.Status == "" {
		return nil, nil
	}
	return []string{"status = $1"}, []any{string(params.Status)}
}
