// Copyright 2025 The CloudWeave Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlitestore provides a SQLite-backed store.Store
// implementation for single-node deployments that need workflow state
// to survive a process restart.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudweave/engine/pkg/store"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. Use ":memory:" for an ephemeral
	// in-process database.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) a SQLite-backed Store at cfg.Path
// and runs its migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// churn under concurrent access from the scheduler and engine.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			inputs TEXT,
			outputs TEXT,
			metadata TEXT,
			error_message TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_completed_at ON workflows(completed_at)`,
		`CREATE TABLE IF NOT EXISTS steps (
			workflow_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			name TEXT,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error_message TEXT,
			outputs TEXT,
			retry_count INTEGER DEFAULT 0,
			max_retries INTEGER DEFAULT 0,
			PRIMARY KEY (workflow_id, step_id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_workflow_id ON steps(workflow_id)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save creates or overwrites the workflow state under state.ID,
// replacing its step rows transactionally.
func (s *Store) Save(ctx context.Context, w *store.WorkflowState) error {
	inputsJSON, err := json.Marshal(w.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(w.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	metadataJSON, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO workflows (id, name, status, inputs, outputs, metadata, error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			metadata = excluded.metadata,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, query,
		w.ID, w.Name, string(w.Status), string(inputsJSON), string(outputsJSON), string(metadataJSON),
		nullString(w.ErrorMessage), createdAt.Format(time.RFC3339Nano), formatTime(w.StartedAt), formatTime(w.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM steps WHERE workflow_id = ?", w.ID); err != nil {
		return fmt.Errorf("failed to clear step rows: %w", err)
	}

	stepQuery := `
		INSERT INTO steps (workflow_id, step_id, name, status, started_at, completed_at, error_message, outputs, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for id, step := range w.Steps {
		outputsJSON, err := json.Marshal(step.Outputs)
		if err != nil {
			return fmt.Errorf("failed to marshal step outputs: %w", err)
		}
		_, err = tx.ExecContext(ctx, stepQuery,
			w.ID, id, step.Name, string(step.Status), formatTime(step.StartedAt), formatTime(step.CompletedAt),
			nullString(step.ErrorMessage), string(outputsJSON), step.RetryCount, step.MaxRetries,
		)
		if err != nil {
			return fmt.Errorf("failed to save step %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns the workflow state stored under id.
func (s *Store) Load(ctx context.Context, id string) (*store.WorkflowState, error) {
	query := `
		SELECT id, name, status, inputs, outputs, metadata, error_message, created_at, started_at, completed_at
		FROM workflows WHERE id = ?
	`
	w, err := s.scanWorkflow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Steps = steps
	return w, nil
}

// List returns every workflow matching filter.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]*store.WorkflowState, error) {
	query := `
		SELECT id, name, status, inputs, outputs, metadata, error_message, created_at, started_at, completed_at
		FROM workflows WHERE 1=1
	`
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var result []*store.WorkflowState
	for rows.Next() {
		w, err := s.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		steps, err := s.loadSteps(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		w.Steps = steps
		result = append(result, w)
	}
	return result, nil
}

// Delete removes the workflow state stored under id; cascade deletes
// its step rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return nil
}

// Cleanup removes every terminal workflow whose completed_at predates
// maxAge, returning the number removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339Nano)
	query := `
		DELETE FROM workflows
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(store.WorkflowCompleted), string(store.WorkflowFailed), string(store.WorkflowCancelled), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up workflows: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned up workflows: %w", err)
	}
	return int(rowsAffected), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanWorkflow(row scanner) (*store.WorkflowState, error) {
	var w store.WorkflowState
	var status string
	var inputsJSON, outputsJSON, metadataJSON sql.NullString
	var errorMessage sql.NullString
	var createdAt, startedAt, completedAt sql.NullString

	err := row.Scan(
		&w.ID, &w.Name, &status, &inputsJSON, &outputsJSON, &metadataJSON,
		&errorMessage, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = store.WorkflowStatus(status)

	if errorMessage.Valid {
		w.ErrorMessage = errorMessage.String
	}
	if inputsJSON.Valid && inputsJSON.String != "" {
		if err := json.Unmarshal([]byte(inputsJSON.String), &w.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}
	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &w.Outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &w.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if createdAt.Valid {
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
	}
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
		w.StartedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		w.CompletedAt = &t
	}
	return &w, nil
}

func (s *Store) loadSteps(ctx context.Context, workflowID string) (map[string]store.StepState, error) {
	query := `
		SELECT step_id, name, status, started_at, completed_at, error_message, outputs, retry_count, max_retries
		FROM steps WHERE workflow_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[string]store.StepState)
	for rows.Next() {
		var step store.StepState
		var status string
		var startedAt, completedAt, errorMessage sql.NullString
		var outputsJSON sql.NullString

		err := rows.Scan(
			&step.ID, &step.Name, &status, &startedAt, &completedAt, &errorMessage,
			&outputsJSON, &step.RetryCount, &step.MaxRetries,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.Status = store.StepStatus(status)
		if errorMessage.Valid {
			step.ErrorMessage = errorMessage.String
		}
		if outputsJSON.Valid && outputsJSON.String != "" {
			if err := json.Unmarshal([]byte(outputsJSON.String), &step.Outputs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step outputs: %w", err)
			}
		}
		if startedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
			step.StartedAt = &t
		}
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			step.CompletedAt = &t
		}
		steps[step.ID] = step
	}
	return steps, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
