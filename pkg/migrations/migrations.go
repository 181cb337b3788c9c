// Package migrations applies the embedded schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// FS returns the migration files with the sql/ prefix stripped.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

type Result struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
}

type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

func New(pool *pgxpool.Pool) (*Migrator, error) {
	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Migrator{db: db, provider: provider}, nil
}

func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Up(ctx)
	out := make([]Result, 0, len(res))
	for _, r := range res {
		out = append(out, toResult(r))
	}
	if err != nil {
		return out, fmt.Errorf("migrations up: %w", err)
	}
	return out, nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) (Result, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("migrations down: %w", err)
	}
	return toResult(res), nil
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		st := Status{
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		}
		if s.Source != nil {
			st.Version = s.Source.Version
			st.Path = s.Source.Path
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Migrator) Close() error {
	return m.db.Close()
}

func toResult(r *goose.MigrationResult) Result {
	if r == nil {
		return Result{}
	}
	out := Result{Direction: r.Direction, Duration: r.Duration}
	if r.Source != nil {
		out.Version = r.Source.Version
		out.Path = r.Source.Path
	}
	return out
}
