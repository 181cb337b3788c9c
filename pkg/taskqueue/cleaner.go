package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Cleaner prunes finished task rows: completed ones after Retention, dead ones
// after DeadRetention (never when zero).
type Cleaner struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	opts       CleanerOptions
	tableLabel string
	m          *metrics
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	opts.setDefaults()
	return &Cleaner{
		pool:       pool,
		table:      table,
		opts:       opts,
		tableLabel: TableLabel(table),
		m:          getMetrics(),
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := c.cleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", c.tableLabel).Warn("taskqueue: cleaner tick failed")
		}
	}
}

func (c *Cleaner) cleanOnce(ctx context.Context) error {
	now := time.Now()
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted := map[string]int64{}
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE completed_at IS NOT NULL AND completed_at < $1`, c.table.Sanitize()),
		now.Add(-c.opts.Retention),
	)
	if err != nil {
		return fmt.Errorf("taskqueue cleaner delete completed: %w", err)
	}
	deleted["completed"] = tag.RowsAffected()

	if c.opts.DeadRetention > 0 {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE dead_at IS NOT NULL AND dead_at < $1`, c.table.Sanitize()),
			now.Add(-c.opts.DeadRetention),
		)
		if err != nil {
			return fmt.Errorf("taskqueue cleaner delete dead: %w", err)
		}
		deleted["dead"] = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for state, n := range deleted {
		if n == 0 {
			continue
		}
		c.m.cleanedTotal.WithLabelValues(c.tableLabel, state).Add(float64(n))
		c.opts.Logger.WithFields(logrus.Fields{"table": c.tableLabel, "state": state, "rows": n}).Debug("taskqueue: cleaner pruned rows")
	}
	return nil
}
