// Package history persists every supervised attempt in a SQLite database so
// build-farm operators can see what ran, how often it was retried, and why
// it stopped.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sofmeright/stagehand/src/retention"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("history: not found")

// Record is one attempt of one step execution.
type Record struct {
	RunID     string // unique per attempt
	Execution string // shared by all attempts of one step execution
	Step      string
	Attempt   int
	Target    string
	Revision  string
	Status    string
	Cause     string
	Error     string
	Start     time.Time
	End       time.Time
}

// Duration is the attempt's wall-clock length.
func (r Record) Duration() time.Duration { return r.End.Sub(r.Start) }

// Store is a SQLite-backed attempt history.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
  run_id     TEXT PRIMARY KEY,
  execution  TEXT NOT NULL,
  step       TEXT NOT NULL,
  attempt    INTEGER NOT NULL,
  target     TEXT NOT NULL DEFAULT '',
  revision   TEXT NOT NULL DEFAULT '',
  status     TEXT NOT NULL,
  cause      TEXT NOT NULL DEFAULT '',
  error      TEXT,
  started_at INTEGER NOT NULL,
  ended_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_step_started ON attempts (step, started_at);
CREATE INDEX IF NOT EXISTS attempts_execution ON attempts (execution);
`

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer at a time; the driver serialises anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add inserts one attempt record.
func (s *Store) Add(ctx context.Context, r Record) error {
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, execution, step, attempt, target, revision, status, cause, error, started_at, ended_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Execution, r.Step, r.Attempt, r.Target, r.Revision,
		r.Status, r.Cause, errText, r.Start.UnixMilli(), r.End.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", r.RunID, err)
	}
	return nil
}

// Filter narrows List. Zero values match everything; Limit <= 0 means 50.
type Filter struct {
	Step      string
	Execution string
	Limit     int
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := `SELECT run_id, execution, step, attempt, target, revision, status, cause, error, started_at, ended_at
       FROM attempts WHERE 1=1`
	var args []any
	if f.Step != "" {
		query += " AND step = ?"
		args = append(args, f.Step)
	}
	if f.Execution != "" {
		query += " AND execution = ?"
		args = append(args, f.Execution)
	}
	query += " ORDER BY started_at DESC, attempt DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                  Record
			errText            sql.NullString
			startedMs, endedMs int64
		)
		if err := rows.Scan(&r.RunID, &r.Execution, &r.Step, &r.Attempt, &r.Target, &r.Revision,
			&r.Status, &r.Cause, &errText, &startedMs, &endedMs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.Error = errText.String
		r.Start = time.UnixMilli(startedMs)
		r.End = time.UnixMilli(endedMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the record for one attempt.
func (s *Store) Get(ctx context.Context, runID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, execution, step, attempt, target, revision, status, cause, error, started_at, ended_at
       FROM attempts WHERE run_id = ?`, runID)
	var (
		r                  Record
		errText            sql.NullString
		startedMs, endedMs int64
	)
	if err := row.Scan(&r.RunID, &r.Execution, &r.Step, &r.Attempt, &r.Target, &r.Revision,
		&r.Status, &r.Cause, &errText, &startedMs, &endedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("history: get %s: %w", runID, err)
	}
	r.Error = errText.String
	r.Start = time.UnixMilli(startedMs)
	r.End = time.UnixMilli(endedMs)
	return r, nil
}

// Steps returns the distinct step names present, sorted.
func (s *Store) Steps(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT step FROM attempts ORDER BY step`)
	if err != nil {
		return nil, fmt.Errorf("history: steps: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DeleteExecution removes every attempt of one execution.
func (s *Store) DeleteExecution(ctx context.Context, execution string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE execution = ?`, execution)
	if err != nil {
		return fmt.Errorf("history: delete %s: %w", execution, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Executions adapts one step's executions to a retention.Store. Each item
// is an execution, dated by its first attempt.
func (s *Store) Executions(step string) retention.Store {
	return executions{s: s, step: step}
}

type executions struct {
	s    *Store
	step string
}

func (e executions) List(ctx context.Context) ([]retention.Item, error) {
	rows, err := e.s.db.QueryContext(ctx,
		`SELECT execution, MIN(started_at) FROM attempts WHERE step = ? GROUP BY execution`, e.step)
	if err != nil {
		return nil, fmt.Errorf("history: executions: %w", err)
	}
	defer rows.Close()
	var out []retention.Item
	for rows.Next() {
		var (
			name      string
			startedMs int64
		)
		if err := rows.Scan(&name, &startedMs); err != nil {
			return nil, err
		}
		out = append(out, retention.Item{Name: name, CreatedAt: time.UnixMilli(startedMs)})
	}
	return out, rows.Err()
}

func (e executions) Delete(ctx context.Context, name string) error {
	return e.s.DeleteExecution(ctx, name)
}
