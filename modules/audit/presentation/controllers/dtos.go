package controllers

import (
	"time"

	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
)

type ActorDTO struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type AuditEventDTO struct {
	ID         string          `json:"id"`
	TableName  string          `json:"table_name"`
	RowPK      string          `json:"row_pk"`
	Operation  string          `json:"operation"`
	Diff       auditevent.Diff `json:"diff"`
	Patch      jsondiff.Patch  `json:"patch,omitempty"`
	Actor      *ActorDTO       `json:"actor"`
	RemoteAddr *string         `json:"remote_addr"`
	UserAgent  string          `json:"user_agent"`
	RequestID  *string         `json:"request_id"`
	ChangedAt  time.Time       `json:"changed_at"`
}

type AuditListResponse struct {
	Items []AuditEventDTO `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func toAuditEventDTO(e *auditevent.Event) AuditEventDTO {
	dto := AuditEventDTO{
		ID:         e.ID.String(),
		TableName:  e.TableName,
		RowPK:      e.RowPK,
		Operation:  string(e.Operation),
		Diff:       e.Diff,
		RemoteAddr: e.RemoteAddr,
		UserAgent:  e.UserAgent,
		RequestID:  e.RequestID,
		ChangedAt:  e.ChangedAt,
	}
	if patch, err := e.Patch(); err == nil {
		dto.Patch = patch
	}
	if e.ActorID != nil {
		dto.Actor = &ActorDTO{ID: *e.ActorID}
		if e.ActorName != nil {
			dto.Actor.Name = *e.ActorName
		}
	}
	return dto
}
