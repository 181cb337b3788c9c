package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
	"github.com/iota-uz/loan-sdk/modules/audit/infrastructure/persistence/models"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/repo"
)

type AuditEventRepository struct{}

func NewAuditEventRepository() auditevent.Repository {
	return &AuditEventRepository{}
}

func (r *AuditEventRepository) Create(ctx context.Context, event *auditevent.Event) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now()
	}

	row, err := toDBAuditEvent(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode audit diff")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_events (
			id,
			table_name,
			row_pk,
			operation,
			diff,
			actor_id,
			actor_name,
			remote_addr,
			user_agent,
			request_id,
			changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		row.ID,
		row.TableName,
		row.RowPK,
		row.Operation,
		row.Diff,
		row.ActorID,
		row.ActorName,
		row.RemoteAddr,
		row.UserAgent,
		row.RequestID,
		row.ChangedAt,
	); err != nil {
		return errors.Wrap(err, "failed to insert audit event")
	}
	return nil
}

func (r *AuditEventRepository) List(ctx context.Context, params *auditevent.FindParams) ([]*auditevent.Event, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	where, args := buildAuditFilters(params)
	query := `
		SELECT id, table_name, row_pk, operation, diff, actor_id, actor_name,
		       remote_addr, user_agent, request_id, changed_at
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY changed_at DESC, id"
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit events")
	}
	defer rows.Close()

	var out []*auditevent.Event
	for rows.Next() {
		var row models.AuditEvent
		if err := rows.Scan(
			&row.ID,
			&row.TableName,
			&row.RowPK,
			&row.Operation,
			&row.Diff,
			&row.ActorID,
			&row.ActorName,
			&row.RemoteAddr,
			&row.UserAgent,
			&row.RequestID,
			&row.ChangedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit event")
		}
		event, err := toDomainAuditEvent(&row)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode audit event %s", row.ID)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating audit events")
	}
	return out, nil
}

func (r *AuditEventRepository) Count(ctx context.Context, params *auditevent.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	where, args := buildAuditFilters(params)
	query := `SELECT COUNT(*) FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var count int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count audit events")
	}
	return count, nil
}

func buildAuditFilters(params *auditevent.FindParams) ([]string, []any) {
	if params == nil {
		return nil, nil
	}
	var where []string
	var args []any
	if table := strings.TrimSpace(params.TableName); table != "" {
		args = append(args, table)
		where = append(where, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if pk := strings.TrimSpace(params.RowPK); pk != "" {
		args = append(args, pk)
		where = append(where, fmt.Sprintf("row_pk = $%d", len(args)))
	}
	if params.Operation != "" {
		args = append(args, string(params.Operation))
		where = append(where, fmt.Sprintf("operation = $%d", len(args)))
	}
	return where, args
}
