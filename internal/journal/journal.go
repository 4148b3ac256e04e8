// Package journal keeps a local history of sync runs in SQLite.
package journal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	name          TEXT NOT NULL,
	calendar      TEXT NOT NULL,
	window_start  INTEGER,
	window_end    INTEGER,
	dry_run       INTEGER NOT NULL,
	created       INTEGER NOT NULL,
	deleted       INTEGER NOT NULL,
	planned       INTEGER NOT NULL,
	delete_failed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS failures (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	uid      TEXT NOT NULL,
	summary  TEXT NOT NULL,
	start    INTEGER NOT NULL,
	conflict INTEGER NOT NULL,
	message  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run is one recorded sync run.
type Run struct {
	ID          string
	StartedAt   time.Time
	Name        string
	Calendar    string
	WindowStart time.Time
	WindowEnd   time.Time
	DryRun      bool
	// Planned is the number of creations the run attempted.
	Planned int
	Created int
	Deleted int
	// DeleteFailed counts stale events the run failed to remove.
	DeleteFailed int
	Failures     []Failure
}

// Failure is a shift a run failed to write.
type Failure struct {
	UID      string
	Summary  string
	Start    time.Time
	Conflict bool
	Message  string
}

// Journal is an open run history database.
type Journal struct {
	db *sql.DB
}

// Open opens, creating if necessary, the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// migrate brings a journal written by an older release up to date.
func migrate(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info('runs')")
	if err != nil {
		return fmt.Errorf("failed to inspect journal schema: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to inspect journal schema: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect journal schema: %w", err)
	}
	rows.Close()

	if !columns["delete_failed"] {
		if _, err := db.ExecContext(ctx, "ALTER TABLE runs ADD COLUMN delete_failed INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("failed to add delete_failed column: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// NewID returns a time-ordered run identifier.
func NewID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Record stores run. An empty ID is filled in from StartedAt.
func (j *Journal) Record(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.ID == "" {
		run.ID = NewID(run.StartedAt)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, name, calendar, window_start, window_end, dry_run, created, deleted, planned, delete_failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Name, run.Calendar,
		nullableUnix(run.WindowStart), nullableUnix(run.WindowEnd),
		run.DryRun, run.Created, run.Deleted, run.Planned, run.DeleteFailed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range run.Failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failures (run_id, uid, summary, start, conflict, message) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, f.UID, f.Summary, f.Start.Unix(), f.Conflict, f.Message)
		if err != nil {
			return fmt.Errorf("failed to insert failure %s: %w", f.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, with their failures.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, name, calendar, window_start, window_end, dry_run, created, deleted, planned, delete_failed
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r            Run
			started      int64
			wStart, wEnd sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &r.Name, &r.Calendar, &wStart, &wEnd, &r.DryRun, &r.Created, &r.Deleted, &r.Planned, &r.DeleteFailed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if wStart.Valid {
			r.WindowStart = time.Unix(wStart.Int64, 0)
		}
		if wEnd.Valid {
			r.WindowEnd = time.Unix(wEnd.Int64, 0)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		failures, err := j.failures(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

func (j *Journal) failures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT uid, summary, start, conflict, message FROM failures WHERE run_id = ? ORDER BY start, uid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f     Failure
			start int64
		)
		if err := rows.Scan(&f.UID, &f.Summary, &start, &f.Conflict, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Start = time.Unix(start, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
