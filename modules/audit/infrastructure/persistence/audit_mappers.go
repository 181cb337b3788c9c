package persistence

import (
	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
	"github.com/iota-uz/loan-sdk/modules/audit/infrastructure/persistence/models"
)

func toDBAuditEvent(e *auditevent.Event) (*models.AuditEvent, error) {
	diff, err := e.Diff.Marshal()
	if err != nil {
		return nil, err
	}
	return &models.AuditEvent{
		ID:         e.ID,
		TableName:  e.TableName,
		RowPK:      e.RowPK,
		Operation:  string(e.Operation),
		Diff:       diff,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		RemoteAddr: e.RemoteAddr,
		UserAgent:  e.UserAgent,
		RequestID:  e.RequestID,
		ChangedAt:  e.ChangedAt,
	}, nil
}

func toDomainAuditEvent(row *models.AuditEvent) (*auditevent.Event, error) {
	diff, err := auditevent.DecodeDiff(row.Diff)
	if err != nil {
		return nil, err
	}
	return &auditevent.Event{
		ID:         row.ID,
		TableName:  row.TableName,
		RowPK:      row.RowPK,
		Operation:  auditevent.Operation(row.Operation),
		Diff:       diff,
		ActorID:    row.ActorID,
		ActorName:  row.ActorName,
		RemoteAddr: row.RemoteAddr,
		UserAgent:  row.UserAgent,
		RequestID:  row.RequestID,
		ChangedAt:  row.ChangedAt,
	}, nil
}
