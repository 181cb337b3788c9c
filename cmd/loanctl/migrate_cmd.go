package main

import (
	"errors"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/loan-sdk/pkg/migrations"
)

var errNoMigrations = errors.New("no migrations to roll back")

type migrationRow struct {
	Version   int64      `json:"version"`
	Path      string     `json:"path"`
	Direction string     `json:"direction,omitempty"`
	Applied   *bool      `json:"applied,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	Duration  string     `json:"duration,omitempty"`
}

type migrateOutput struct {
	Command    string         `json:"command"`
	Migrations []migrationRow `json:"migrations"`
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
	}
	cmd.AddCommand(
		newMigrateSubCmd("up", "Apply all pending migrations", migrateUp),
		newMigrateSubCmd("down", "Roll back the most recent migration", migrateDown),
		newMigrateSubCmd("status", "List migrations and whether they are applied", migrateStatus),
	)
	return cmd
}

func newMigrateSubCmd(use, short string, run func(cmd *cobra.Command, m *migrations.Migrator) ([]migrationRow, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			defer conf.Unload()
			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			m, err := migrations.New(pool)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer m.Close()

			rows, err := run(cmd, m)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd.OutOrStdout(), migrateOutput{Command: "migrate " + use, Migrations: rows})
		},
	}
}

func migrateUp(cmd *cobra.Command, m *migrations.Migrator) ([]migrationRow, error) {
	results, err := m.Up(cmd.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, resultRow(r))
	}
	return rows, nil
}

func migrateDown(cmd *cobra.Command, m *migrations.Migrator) ([]migrationRow, error) {
	r, err := m.Down(cmd.Context())
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, errNoMigrations
	}
	if err != nil {
		return nil, err
	}
	return []migrationRow{resultRow(r)}, nil
}

func migrateStatus(cmd *cobra.Command, m *migrations.Migrator) ([]migrationRow, error) {
	statuses, err := m.Status(cmd.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(statuses))
	for _, s := range statuses {
		applied := s.Applied
		row := migrationRow{Version: s.Version, Path: s.Path, Applied: &applied}
		if s.Applied {
			at := s.AppliedAt
			row.AppliedAt = &at
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func resultRow(r migrations.Result) migrationRow {
	return migrationRow{
		Version:   r.Version,
		Path:      r.Path,
		Direction: r.Direction,
		Duration:  r.Duration.String(),
	}
}
