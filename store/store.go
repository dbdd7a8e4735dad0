// Package store keeps a SQLite history of calibration runs.
package store

import (
	"database/sql"
	"time"

	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	ref_tool INTEGER,
	method TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tool_results (
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	tool INTEGER NOT NULL,
	z_trigger REAL NOT NULL,
	z_offset REAL NOT NULL,
	ref_tool INTEGER,
	last_run INTEGER NOT NULL,
	PRIMARY KEY (run_id, tool)
);
`

// Run is one recorded command execution.
type Run struct {
	ID         int64
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time

	// RefTool is set for calibration runs.
	RefTool *int
	Method  string

	// Error is empty for successful runs.
	Error   string
	Results []zswitch.ToolResult
}

// Store records runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func unix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

// RecordRun stores run and its results, returning the new run ID.
func (s *Store) RecordRun(run Run) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (command, started_at, finished_at, ref_tool, method, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.Command, unix(run.StartedAt), unix(run.FinishedAt), nullInt(run.RefTool), run.Method, run.Error)
	if err != nil {
		return 0, errors.Wrap(err, "insert run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "run id")
	}

	for _, r := range run.Results {
		_, err = tx.Exec(`
			INSERT INTO tool_results (run_id, tool, z_trigger, z_offset, ref_tool, last_run)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, r.Tool, r.ZTrigger, r.ZOffset, nullInt(r.RefTool), unix(r.LastRun))
		if err != nil {
			return 0, errors.Wrapf(err, "insert result T%d", r.Tool)
		}
	}

	return id, errors.Wrap(tx.Commit(), "commit")
}

// Runs returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, command, started_at, finished_at, ref_tool, method, error
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var ref sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Command, &started, &finished, &ref, &r.Method, &r.Error); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.StartedAt, r.FinishedAt = fromUnix(started), fromUnix(finished)
		r.RefTool = intPtr(ref)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		runs[i].Results, err = s.results(runs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) results(runID int64) ([]zswitch.ToolResult, error) {
	rows, err := s.db.Query(`
		SELECT tool, z_trigger, z_offset, ref_tool, last_run
		FROM tool_results
		WHERE run_id = ?
		ORDER BY tool ASC
	`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query results")
	}
	defer rows.Close()

	var res []zswitch.ToolResult
	for rows.Next() {
		var r zswitch.ToolResult
		var ref sql.NullInt64
		var last int64
		if err := rows.Scan(&r.Tool, &r.ZTrigger, &r.ZOffset, &ref, &last); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		r.RefTool = intPtr(ref)
		r.LastRun = fromUnix(last)
		res = append(res, r)
	}
	return res, rows.Err()
}
