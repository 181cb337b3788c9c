package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Relay claims due rows from the queue table and dispatches them.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey int64

	m          *metrics
	tableLabel string
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}

	opts.setDefaults()

	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		tableLabel: TableLabel(table),
		lockKey:    advisoryLockKey("taskqueue:" + TableLabel(table)),
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}

	r.m.relayLeader.WithLabelValues(backendPostgres).Set(1)
	return r.runLoop(ctx, nil)
}

func (r *Relay) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.opts.PollInterval):
		return nil
	}
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("taskqueue: failed to acquire connection for single-active relay")
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		leader, err := r.tryAcquireLeader(ctx, conn)
		if err != nil || !leader {
			conn.Release()
			if err != nil {
				r.opts.Logger.WithError(err).Warn("taskqueue: failed to attempt advisory lock")
			}
			r.m.relayLeader.WithLabelValues(backendPostgres).Set(0)
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		r.m.relayLeader.WithLabelValues(backendPostgres).Set(1)
		r.opts.Logger.WithField("table", r.tableLabel).Info("taskqueue: relay became leader")

		err = r.runLoop(ctx, conn)
		_ = r.releaseLeader(context.Background(), conn)
		conn.Release()
		return err
	}
}

func (r *Relay) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, conn); err != nil {
				r.opts.Logger.WithError(err).Debug("taskqueue: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if err := r.processOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("taskqueue: process tick failed")
		}
	}
}

func (r *Relay) processOnce(ctx context.Context, conn *pgxpool.Conn) error {
	now := time.Now()
	cutoff := now.Add(-r.opts.LockTTL)

	claimed, err := r.claim(ctx, conn, now, cutoff)
	if err != nil {
		return err
	}

	for _, task := range claimed {
		dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
		start := time.Now()
		err := r.dispatcher.Dispatch(dispatchCtx, task)
		cancel()
		latency := time.Since(start)
		log := r.opts.Logger.WithFields(taskFields(task))

		if err == nil {
			r.m.recordDispatch(backendPostgres, task.Topic, "success", latency)
			if ackErr := r.ack(ctx, conn, task.ID); ackErr != nil {
				log.WithError(ackErr).Warn("taskqueue: ack failed")
			}
			continue
		}

		r.m.recordDispatch(backendPostgres, task.Topic, "failure", latency)
		lastErr := truncateError(err, r.opts.LastErrorMaxLen)

		if !r.opts.Retry.ShouldRetry(err, task.Attempt) {
			r.m.deadTotal.WithLabelValues(backendPostgres, task.Topic).Inc()
			log.WithError(err).Warn("taskqueue: task failed terminally")
			if deadErr := r.dead(ctx, conn, task.ID, lastErr); deadErr != nil {
				log.WithError(deadErr).Warn("taskqueue: dead update failed")
			}
			continue
		}

		next := time.Now().Add(r.opts.Retry.Backoff(task.Attempt) + jitter(r.opts.Rand, r.opts.Retry.JitterMax))
		if nackErr := r.nack(ctx, conn, task.ID, lastErr, next); nackErr != nil {
			log.WithError(nackErr).Warn("taskqueue: nack failed")
		}
	}

	return nil
}

func (r *Relay) claim(ctx context.Context, conn *pgxpool.Conn, now, lockCutoff time.Time) ([]Task, error) {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.rollback(ctx)

	tableName := r.table.Sanitize()
	q := fmt.Sprintf(
		`SELECT id, topic, payload, attempts, created_at
		   FROM %s
		  WHERE completed_at IS NULL
		    AND dead_at IS NULL
		    AND available_at <= $1
		    AND (locked_at IS NULL OR locked_at < $2)
		  ORDER BY available_at, sequence
		  LIMIT $3
		  FOR UPDATE SKIP LOCKED`,
		tableName,
	)
	rows, err := tx.tx.Query(ctx, q, now, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("taskqueue claim select: %w", err)
	}
	defer rows.Close()

	var items []Task
	var ids []uuid.UUID
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Topic, &t.Payload, &t.Attempt, &t.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("taskqueue claim scan: %w", err)
		}
		t.Attempt++
		items = append(items, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskqueue claim rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.commit(ctx)
	}

	update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, tableName)
	if _, err := tx.tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, fmt.Errorf("taskqueue claim update: %w", err)
	}

	if err := tx.commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Relay) finish(ctx context.Context, conn *pgxpool.Conn, op, set string, args ...any) error {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $1 AND completed_at IS NULL AND dead_at IS NULL`,
		r.table.Sanitize(), set,
	)
	if _, err := tx.tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("taskqueue %s: %w", op, err)
	}
	return tx.commit(ctx)
}

func (r *Relay) ack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	return r.finish(ctx, conn, "ack",
		`completed_at = now(), locked_at = NULL, last_error = NULL`, id)
}

func (r *Relay) nack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	return r.finish(ctx, conn, "nack",
		`locked_at = NULL, last_error = $2, available_at = $3`, id, lastError, nextAvailable)
}

func (r *Relay) dead(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string) error {
	return r.finish(ctx, conn, "dead",
		`locked_at = NULL, last_error = $2, dead_at = now()`, id, lastError)
}

func (r *Relay) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	exec := txExec{pool: r.pool, conn: conn}
	db := exec.queryer()

	tableName := r.table.Sanitize()
	q := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s
		  WHERE completed_at IS NULL AND dead_at IS NULL`,
		tableName,
	)

	var pending, locked int64
	if err := db.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return fmt.Errorf("taskqueue depth: %w", err)
	}

	r.m.pending.WithLabelValues(backendPostgres).Set(float64(pending))
	r.m.locked.WithLabelValues(backendPostgres).Set(float64(locked))
	return nil
}

func (r *Relay) tryAcquireLeader(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Relay) releaseLeader(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	return conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

type txExec struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (e txExec) begin(ctx context.Context) (*txWrap, error) {
	var (
		tx  pgx.Tx
		err error
	)
	if e.conn != nil {
		tx, err = e.conn.BeginTx(ctx, pgx.TxOptions{})
	} else {
		tx, err = e.pool.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		return nil, err
	}
	return &txWrap{tx: tx}, nil
}

func (e txExec) queryer() queryer {
	if e.conn != nil {
		return e.conn
	}
	return e.pool
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txWrap struct {
	tx pgx.Tx
}

func (t *txWrap) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txWrap) rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}
