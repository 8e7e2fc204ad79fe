package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name: "create segmentation_runs",
		sql: `CREATE TABLE IF NOT EXISTS segmentation_runs (
    id             uuid PRIMARY KEY,
    source         text NOT NULL,
    name           text NOT NULL DEFAULT '',
    outcome        text NOT NULL,
    sentence_count int NOT NULL,
    token_count    int NOT NULL,
    segment_count  int NOT NULL,
    boundaries     int[] NOT NULL DEFAULT '{}',
    scorer         text NOT NULL DEFAULT '',
    seed           bigint NOT NULL DEFAULT 0,
    duration_ms    int NOT NULL DEFAULT 0,
    output_key     text,
    created_at     timestamptz NOT NULL DEFAULT now()
)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'segmentation_runs')`,
	},
	{
		name: "create segments",
		sql: `CREATE TABLE IF NOT EXISTS segments (
    run_id     uuid NOT NULL REFERENCES segmentation_runs(id) ON DELETE CASCADE,
    position   int NOT NULL,
    start_time double precision NOT NULL,
    end_time   double precision NOT NULL,
    text       text NOT NULL,
    PRIMARY KEY (run_id, position)
)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'segments')`,
	},
	{
		name:  "add segmentation_runs created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_segmentation_runs_created ON segmentation_runs (created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_segmentation_runs_created')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. A failed apply is returned; the caller
// should treat this as fatal since run persistence depends on these tables.
func (db *DB) Migrate(ctx context.Context) error {
	pending := db.pendingMigrations(ctx)
	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

func (db *DB) pendingMigrations(ctx context.Context) []migration {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}
	return pending
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart the segmenter.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
