package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/repo"
)

const backendPostgres = "postgres"

// Publisher writes tasks into a Postgres queue table drained by Relay.
type Publisher struct {
	table pgx.Identifier
	m     *metrics
}

func NewPublisher(table pgx.Identifier) (*Publisher, error) {
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	return &Publisher{table: table, m: getMetrics()}, nil
}

// Publish inserts task using tx. Publishing the same task id twice is a no-op.
func (p *Publisher) Publish(ctx context.Context, tx repo.Tx, task Task) error {
	if task.ID == uuid.Nil {
		return fmt.Errorf("%w: task id is required", ErrInvalidConfig)
	}
	if task.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	payload := task.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	availableAt := task.EnqueuedAt
	if availableAt.IsZero() {
		availableAt = time.Now()
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (id, topic, payload, available_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		p.table.Sanitize(),
	)
	if _, err := tx.Exec(ctx, q, task.ID, task.Topic, payload, availableAt); err != nil {
		p.m.enqueueTotal.WithLabelValues(backendPostgres, task.Topic, "error").Inc()
		return fmt.Errorf("taskqueue publish: %w", err)
	}
	p.m.enqueueTotal.WithLabelValues(backendPostgres, task.Topic, "ok").Inc()
	return nil
}

// Enqueue publishes through the transaction or pool carried by ctx.
func (p *Publisher) Enqueue(ctx context.Context, task Task) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	return p.Publish(ctx, tx, task)
}
