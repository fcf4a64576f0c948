// Package history records finished task results in a local SQLite database.
// It is an append-only run log for inspection after the fact, not resumable
// task state.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/ensemble/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	task_id TEXT NOT NULL,
	task TEXT NOT NULL,
	model TEXT,
	exit_code INTEGER NOT NULL,
	error TEXT,
	aborted INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,
	turns INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_results_run ON task_results(run_id);
`

// Entry is one recorded task result.
type Entry struct {
	RunID        string
	Mode         string
	TaskID       string
	Task         string
	Model        string
	ExitCode     int
	Error        string
	Aborted      bool
	DurationMs   int64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Turns        int
	CreatedAt    time.Time
}

// Store is a handle to the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one finished task result to the log.
func (s *Store) Record(runID, mode string, result models.TaskResult) error {
	_, err := s.db.Exec(`
		INSERT INTO task_results (
			run_id, mode, task_id, task, model, exit_code, error, aborted,
			duration_ms, input_tokens, output_tokens, cost, turns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, mode, result.ID, result.Task, result.Model, result.ExitCode,
		result.Error, boolToInt(result.Aborted), result.DurationMs,
		result.Usage.Input, result.Usage.Output, result.Usage.Cost,
		result.Usage.Turns, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record task result: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, mode, task_id, task, model, exit_code, error, aborted,
			duration_ms, input_tokens, output_tokens, cost, turns, created_at
		FROM task_results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var aborted int
		var createdAt string
		if err := rows.Scan(&e.RunID, &e.Mode, &e.TaskID, &e.Task, &e.Model,
			&e.ExitCode, &e.Error, &aborted, &e.DurationMs,
			&e.InputTokens, &e.OutputTokens, &e.Cost, &e.Turns, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Aborted = aborted != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
