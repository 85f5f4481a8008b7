// Package persistence provides the SQLite-backed audit store. Every workflow
// decision (safety, assessment, strategy, gate verdicts, finalization) is
// recorded so a rejected or failed task can be explained after the fact.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
)

// Decision stages recorded in the audit trail.
const (
	StageSafety     = "safety"
	StageAssessment = "assessment"
	StageStrategy   = "strategy"
	StageGate       = "gate"
	StageFinalize   = "finalize"
)

// Decision is one audit record.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Decision struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Stage     string    `json:"stage"`
	Decision  string    `json:"decision"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed audit and result store.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	decision TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_task ON decisions(task_id);

CREATE TABLE IF NOT EXISTS results (
	task_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open creates (or opens) the store at dbPath, applying the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode and a busy timeout keep the single writer from erroring out
	// under concurrent reads.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("Audit store initialized: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision appends one audit record.
func (s *Store) RecordDecision(ctx context.Context, taskID, stage, decision, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (task_id, stage, decision, detail) VALUES (?, ?, ?, ?)`,
		taskID, stage, decision, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s decision for task %s: %w", stage, taskID, err)
	}
	return nil
}

// ListDecisions returns a task's audit trail in insertion order.
func (s *Store) ListDecisions(ctx context.Context, taskID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, stage, decision, detail, created_at FROM decisions WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for task %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Stage, &d.Decision, &d.Detail, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// SaveResult upserts a task's result record as JSON.
func (s *Store) SaveResult(ctx context.Context, result *tasks.CodingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (task_id, status, payload, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(task_id) DO UPDATE SET status = excluded.status, payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		result.TaskID, string(result.Status), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save result for task %s: %w", result.TaskID, err)
	}
	return nil
}

// GetResult loads a persisted result, or nil when none exists.
func (s *Store) GetResult(ctx context.Context, taskID string) (*tasks.CodingResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM results WHERE task_id = ?`, taskID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result for task %s: %w", taskID, err)
	}

	var result tasks.CodingResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result for task %s: %w", taskID, err)
	}
	return &result, nil
}
