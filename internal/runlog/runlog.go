// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlog keeps the history of task executions in a SQLite
// database stored next to an experiment's score artifacts.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/s2score/pkg/types"
)

// DBFile is the run log file name inside a scores directory.
const DBFile = "runs.db"

// Outcome says how a task's artifact came to exist.
type Outcome string

const (
	OutcomeComputed Outcome = "computed"
	OutcomeCopied   Outcome = "copied"
)

// Run is one execution of a task variant.
type Run struct {
	ID       int64         `json:"id" yaml:"id"`
	Task     types.Task    `json:"-" yaml:"-"`
	Name     string        `json:"task" yaml:"task"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Started  time.Time     `json:"started" yaml:"started"`
	Finished time.Time     `json:"finished" yaml:"finished"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`

	// Records is the number of records scored in this run. ResumedFrom is
	// the ledger progress found when the run started.
	Records     int `json:"records" yaml:"records"`
	ResumedFrom int `json:"resumed_from" yaml:"resumed_from"`

	Repaired   int `json:"repaired" yaml:"repaired"`
	Unresolved int `json:"unresolved" yaml:"unresolved"`

	// Source names the artifact a copied origin came from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Store manages the run log database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the run log at dir/runs.db and creates the schema
// if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run log directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task TEXT NOT NULL,
			experiment TEXT NOT NULL,
			sample TEXT NOT NULL,
			task_number INTEGER NOT NULL,
			variant TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started TEXT NOT NULL,
			finished TEXT NOT NULL,
			records INTEGER NOT NULL,
			resumed_from INTEGER NOT NULL,
			repaired INTEGER NOT NULL,
			unresolved INTEGER NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores r and returns its row id.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (task, experiment, sample, task_number, variant, outcome,
			started, finished, records, resumed_from, repaired, unresolved, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Task.Name(), r.Task.Experiment, r.Task.Sample, r.Task.Number, r.Task.Variant,
		string(r.Outcome),
		r.Started.UTC().Format(time.RFC3339Nano), r.Finished.UTC().Format(time.RFC3339Nano),
		r.Records, r.ResumedFrom, r.Repaired, r.Unresolved, r.Source,
	)
	if err != nil {
		return 0, fmt.Errorf("recording run of %s: %w", r.Task.Name(), err)
	}
	return res.LastInsertId()
}

// List returns the runs of an experiment, oldest first. An empty
// experiment lists every run.
func (s *Store) List(ctx context.Context, experiment string) ([]Run, error) {
	query := `SELECT id, task, experiment, sample, task_number, variant, outcome,
			started, finished, records, resumed_from, repaired, unresolved, COALESCE(source, '')
		 FROM runs`
	var args []any
	if experiment != "" {
		query += ` WHERE experiment = ?`
		args = append(args, experiment)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			outcome           string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Task.Experiment, &r.Task.Sample, &r.Task.Number,
			&r.Task.Variant, &outcome, &started, &finished, &r.Records, &r.ResumedFrom,
			&r.Repaired, &r.Unresolved, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Outcome = Outcome(outcome)
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		r.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		r.Elapsed = r.Finished.Sub(r.Started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
