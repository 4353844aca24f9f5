// Package ledger keeps a local SQLite history of pipeline runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	input          TEXT NOT NULL,
	output_dir     TEXT NOT NULL,
	provider       TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	rows_in        INTEGER NOT NULL DEFAULT 0,
	rows_out       INTEGER NOT NULL DEFAULT 0,
	charts         INTEGER NOT NULL DEFAULT 0,
	chart_failures INTEGER NOT NULL DEFAULT 0,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_results (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	tokens      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, stage)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Stage is one stage outcome of a run.
type Stage struct {
	Stage     string
	Status    string
	ErrorKind string
	Attempts  int
	Duration  time.Duration
	Tokens    int
}

// Run is one recorded pipeline run.
type Run struct {
	ID            string
	Input         string
	OutputDir     string
	Provider      string
	Model         string
	RowsIn        int
	RowsOut       int
	Charts        int
	ChartFailures int
	StartedAt     time.Time
	FinishedAt    time.Time
	Stages        []Stage
}

// Failed counts stages that did not succeed.
func (r Run) Failed() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == "failed" {
			n++
		}
	}
	return n
}

// Store is a SQLite-backed run ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown ledger schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores r and its stage outcomes in one transaction. Recording the
// same run ID twice replaces the earlier entry.
func (s *Store) Record(ctx context.Context, r Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stage_results WHERE run_id = ?", r.ID); err != nil {
		return fmt.Errorf("clear stages: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(id, input, output_dir, provider, model, rows_in, rows_out, charts, chart_failures, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Input, r.OutputDir, r.Provider, r.Model, r.RowsIn, r.RowsOut, r.Charts, r.ChartFailures,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, st := range r.Stages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stage_results(run_id, stage, status, error_kind, attempts, duration_ms, tokens)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			r.ID, st.Stage, st.Status, st.ErrorKind, st.Attempts, st.Duration.Milliseconds(), st.Tokens)
		if err != nil {
			return fmt.Errorf("insert stage %s: %w", st.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, output_dir, provider, model, rows_in, rows_out, charts, chart_failures, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Input, &r.OutputDir, &r.Provider, &r.Model, &r.RowsIn, &r.RowsOut,
			&r.Charts, &r.ChartFailures, &started, &finished); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		stages, err := s.stages(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Stages = stages
	}
	return out, nil
}

func (s *Store) stages(ctx context.Context, runID string) ([]Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, error_kind, attempts, duration_ms, tokens
		 FROM stage_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()
	var out []Stage
	for rows.Next() {
		var st Stage
		var ms int64
		if err := rows.Scan(&st.Stage, &st.Status, &st.ErrorKind, &st.Attempts, &ms, &st.Tokens); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		st.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, st)
	}
	return out, rows.Err()
}
