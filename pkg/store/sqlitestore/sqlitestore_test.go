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

package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudweave/engine/pkg/store"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w := &store.WorkflowState{
		ID:     "wf-1",
		Name:   "deploy",
		Status: store.WorkflowRunning,
		Inputs: map[string]any{"region": "us-east-1"},
		Steps: map[string]store.StepState{
			"s1": {ID: "s1", Name: "create", Status: store.StepRunning, RetryCount: 0, MaxRetries: 3},
		},
	}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "deploy" || got.Status != store.WorkflowRunning {
		t.Errorf("unexpected loaded workflow: %+v", got)
	}
	if got.Inputs["region"] != "us-east-1" {
		t.Errorf("expected inputs to round-trip, got %+v", got.Inputs)
	}
	step, ok := got.Steps["s1"]
	if !ok {
		t.Fatalf("expected step s1 to be loaded")
	}
	if step.Status != store.StepRunning || step.MaxRetries != 3 {
		t.Errorf("unexpected loaded step: %+v", step)
	}
}

func TestSaveLoad_TimestampPrecisionRoundTrips(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 7, 30, 12, 0, 0, 123456789, time.UTC)
	completed := time.Date(2026, 7, 30, 12, 0, 1, 987654321, time.UTC)
	w := &store.WorkflowState{
		ID:          "wf-precision",
		Name:        "deploy",
		Status:      store.WorkflowCompleted,
		CreatedAt:   started,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "wf-precision")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.CreatedAt.Equal(started) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, started)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
}

func TestSave_OverwriteReplacesSteps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w := &store.WorkflowState{
		ID:     "wf-1",
		Status: store.WorkflowRunning,
		Steps: map[string]store.StepState{
			"s1": {ID: "s1", Status: store.StepRunning},
			"s2": {ID: "s2", Status: store.StepPending},
		},
	}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	w2 := &store.WorkflowState{
		ID:     "wf-1",
		Status: store.WorkflowCompleted,
		Steps: map[string]store.StepState{
			"s1": {ID: "s1", Status: store.StepCompleted},
		},
	}
	if err := s.Save(ctx, w2); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}

	got, err := s.Load(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("expected stale step s2 to be replaced, got %+v", got.Steps)
	}
	if got.Steps["s1"].Status != store.StepCompleted {
		t.Errorf("expected s1 to reflect overwrite, got %+v", got.Steps["s1"])
	}
}

func TestLoad_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Load(context.Background(), "ghost")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestList_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.Save(ctx, &store.WorkflowState{ID: "wf-1", Name: "deploy", Status: store.WorkflowRunning})
	s.Save(ctx, &store.WorkflowState{ID: "wf-2", Name: "deploy", Status: store.WorkflowCompleted})
	s.Save(ctx, &store.WorkflowState{ID: "wf-3", Name: "teardown", Status: store.WorkflowCompleted})

	completed, err := s.List(ctx, store.Filter{Status: store.WorkflowCompleted})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed workflows, got %d", len(completed))
	}

	named, err := s.List(ctx, store.Filter{Status: store.WorkflowCompleted, Name: "teardown"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(named) != 1 || named[0].ID != "wf-3" {
		t.Fatalf("expected only wf-3, got %+v", named)
	}
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w := &store.WorkflowState{
		ID:    "wf-1",
		Steps: map[string]store.StepState{"s1": {ID: "s1", Status: store.StepPending}},
	}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Delete(ctx, "wf-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "wf-1"); err == nil {
		t.Fatalf("expected error loading deleted workflow")
	}

	steps, err := s.loadSteps(ctx, "wf-1")
	if err != nil {
		t.Fatalf("loadSteps() error = %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected cascade delete of step rows, got %+v", steps)
	}
}

func TestDelete_NotFound(t *testing.T) {
	s := createTestStore(t)
	err := s.Delete(context.Background(), "ghost")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Minute)

	s.Save(ctx, &store.WorkflowState{ID: "old-done", Status: store.WorkflowCompleted, CompletedAt: &old})
	s.Save(ctx, &store.WorkflowState{ID: "recent-done", Status: store.WorkflowCompleted, CompletedAt: &recent})
	s.Save(ctx, &store.WorkflowState{ID: "still-running", Status: store.WorkflowRunning})

	removed, err := s.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := s.Load(ctx, "old-done"); err == nil {
		t.Errorf("expected old-done to be removed")
	}
	if _, err := s.Load(ctx, "recent-done"); err != nil {
		t.Errorf("expected recent-done to survive, got %v", err)
	}
	if _, err := s.Load(ctx, "still-running"); err != nil {
		t.Errorf("expected still-running to survive regardless of age, got %v", err)
	}
}
