package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/coloop/pkg/model"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteJournal(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteJournal{
		db:     db,
		logger: logger.With("component", "journal"),
	}, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Migrate creates all required tables and indexes.
func (j *SQLiteJournal) Migrate(ctx context.Context) error {
	j.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, j.db)
}

// --- Runs ---

func (j *SQLiteJournal) BeginRun(ctx context.Context, runID, script string) error {
	j.logger.Debug("sql", "op", "insert", "table", "runs", "id", runID)
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, script, state, started_at) VALUES (?, ?, ?, ?)`,
		runID, script, model.RunStateRunning, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

func (j *SQLiteJournal) EndRun(ctx context.Context, runID string, state model.RunState, runErr string) error {
	j.logger.Debug("sql", "op", "update", "table", "runs", "id", runID, "state", state)
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, ended_at = ? WHERE id = ?`,
		state, runErr, time.Now().UTC().Format(timeFormat), runID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewNotFoundError("run", runID)
	}
	return nil
}

const runColumns = `r.id, r.script, r.state, r.error, r.started_at, r.ended_at,
	(SELECT COUNT(*) FROM steps s WHERE s.run_id = r.id),
	(SELECT COUNT(*) FROM steps s WHERE s.run_id = r.id AND s.status_name = 'error')`

func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	j.logger.Debug("sql", "op", "get", "table", "runs", "id", runID)
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (j *SQLiteJournal) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.RunSummary, int, error) {
	j.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.Status != "" {
		whereSQL = " WHERE r.state = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs r`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r`+whereSQL+` ORDER BY r.started_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.RunSummary, error) {
	var run model.RunSummary
	var state, startedAt string
	var endedAt *string
	if err := sc.Scan(&run.RunID, &run.Script, &state, &run.Error, &startedAt, &endedAt, &run.Steps, &run.Failures); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *endedAt)
		run.EndedAt = &t
	}
	return &run, nil
}

// --- Steps ---

func (j *SQLiteJournal) RecordStep(ctx context.Context, rec model.StepRecord) error {
	j.logger.Debug("sql", "op", "insert", "table", "steps", "run_id", rec.RunID, "seq", rec.Seq)
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, seq, status, status_name, thread_id, thread_name, message, trace, result, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Seq, int(rec.Status), rec.Status.String(), rec.ThreadID, rec.ThreadName,
		rec.Message, rec.Trace, rec.Result, rec.Duration.Nanoseconds(), rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert step %s/%d: %w", rec.RunID, rec.Seq, err)
	}
	return nil
}

func (j *SQLiteJournal) ListSteps(ctx context.Context, runID string, opts model.ListOptions) ([]model.StepRecord, int, error) {
	j.logger.Debug("sql", "op", "list", "table", "steps", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := " WHERE run_id = ?"
	args := []any{runID}
	if opts.Status != "" {
		whereSQL += " AND status_name = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, seq, status, status_name, thread_id, thread_name, message, trace, result, duration_ns, created_at
		FROM steps`+whereSQL+` ORDER BY seq ASC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var steps []model.StepRecord
	for rows.Next() {
		var rec model.StepRecord
		var status int
		var durationNS int64
		var createdAt string
		if err := rows.Scan(&rec.RunID, &rec.Seq, &status, &rec.StatusName, &rec.ThreadID, &rec.ThreadName,
			&rec.Message, &rec.Trace, &rec.Result, &durationNS, &createdAt); err != nil {
			return nil, 0, err
		}
		rec.Status = model.StepStatus(status)
		rec.Duration = time.Duration(durationNS)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		steps = append(steps, rec)
	}
	return steps, total, rows.Err()
}
