package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
	"github.com/iota-uz/loan-sdk/pkg/composables"
)

type RecorderOptions struct {
	// FailMutation makes a failed audit write fail the caller's mutation.
	FailMutation bool
	Now          func() time.Time
}

// Recorder persists audit events for entity mutations.
type Recorder struct {
	repo         auditevent.Repository
	failMutation bool
	now          func() time.Time
}

func NewRecorder(repo auditevent.Repository, opts RecorderOptions) *Recorder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		repo:         repo,
		failMutation: opts.FailMutation,
		now:          now,
	}
}

// Persist writes one event for diff. An empty diff writes nothing and returns
// nil. The actor and request metadata come from the request context in ctx;
// without one the event has no actor.
func (r *Recorder) Persist(ctx context.Context, table, rowPK string, diff auditevent.Diff, op auditevent.Operation) (*auditevent.Event, error) {
	if len(diff) == 0 {
		eventsTotal().WithLabelValues(string(op), "skipped").Inc()
		return nil, nil
	}

	normalized := make(auditevent.Diff, len(diff))
	for k, c := range diff {
		normalized[k] = auditevent.Change{Old: Normalize(c.Old), New: Normalize(c.New)}
	}

	event := &auditevent.Event{
		ID:        uuid.New(),
		TableName: table,
		RowPK:     rowPK,
		Operation: op,
		Diff:      normalized,
		ChangedAt: r.now(),
	}
	if rc, ok := composables.UseRequestContext(ctx); ok {
		if rc.Actor != nil {
			event.ActorID = optional(rc.Actor.ID)
			event.ActorName = optional(rc.Actor.Name)
		}
		event.RemoteAddr = optional(rc.IP)
		event.UserAgent = rc.UserAgent
		event.RequestID = optional(rc.RequestID)
	}

	if err := r.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Record persists diff inside a savepoint. Unless FailMutation is set a
// failure is logged and swallowed so the surrounding write survives.
func (r *Recorder) Record(ctx context.Context, table, rowPK string, diff auditevent.Diff, op auditevent.Operation) error {
	if len(diff) == 0 {
		eventsTotal().WithLabelValues(string(op), "skipped").Inc()
		return nil
	}
	err := composables.InSavepoint(ctx, func(ctx context.Context) error {
		_, err := r.Persist(ctx, table, rowPK, diff, op)
		return err
	})
	if err == nil {
		eventsTotal().WithLabelValues(string(op), "written").Inc()
		return nil
	}

	eventsTotal().WithLabelValues(string(op), "failed").Inc()
	if r.failMutation {
		return err
	}
	composables.UseLogger(ctx).WithError(err).WithFields(logrus.Fields{
		"table":     table,
		"row_pk":    rowPK,
		"operation": string(op),
	}).Error("audit: failed to persist event")
	return nil
}

func (r *Recorder) List(ctx context.Context, params *auditevent.FindParams) ([]*auditevent.Event, int64, error) {
	if params == nil {
		params = &auditevent.FindParams{}
	}
	events, err := r.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := r.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return events, count, nil
}

// RecordCreate audits the creation of entity.
func RecordCreate[T any](ctx context.Context, r *Recorder, s Schema[T], entity T, tracked Tracked) error {
	return r.Record(ctx, s.Table, s.PK(entity), s.CreateDiff(entity, tracked), auditevent.OperationCreate)
}

// RecordUpdate audits the change from before to after.
func RecordUpdate[T any](ctx context.Context, r *Recorder, s Schema[T], before, after T, tracked Tracked) error {
	return r.Record(ctx, s.Table, s.PK(after), s.UpdateDiff(before, after, tracked), auditevent.OperationUpdate)
}

// RecordDelete audits the deletion of entity.
func RecordDelete[T any](ctx context.Context, r *Recorder, s Schema[T], entity T, tracked Tracked) error {
	return r.Record(ctx, s.Table, s.PK(entity), s.DeleteDiff(entity, tracked), auditevent.OperationDelete)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
