package journal

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the journal tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		script     TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL DEFAULT 'RUNNING',
		started_at TEXT NOT NULL,
		ended_at   TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS steps (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		status      INTEGER NOT NULL,
		status_name TEXT NOT NULL,
		thread_id   TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		trace       TEXT NOT NULL DEFAULT '',
		result      TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_steps_status_name ON steps(run_id, status_name)`,
}

// alterStatements are columns added after the first journal release. They run
// on every Migrate, so fresh and older databases end up with the same layout.
// SQLite has no IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "error",
		alterSQL: "ALTER TABLE runs ADD COLUMN error TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "steps",
		column:   "thread_name",
		alterSQL: "ALTER TABLE steps ADD COLUMN thread_name TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_steps_thread_name ON steps(thread_name)",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := hasColumn(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
