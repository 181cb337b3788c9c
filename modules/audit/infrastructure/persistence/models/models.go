package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditEvent struct {
	ID         uuid.UUID
	TableName  string
	RowPK      string
	Operation  string
	Diff       []byte
	ActorID    *string
	ActorName  *string
	RemoteAddr *string
	UserAgent  string
	RequestID  *string
	ChangedAt  time.Time
}
