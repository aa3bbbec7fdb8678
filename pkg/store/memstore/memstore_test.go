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

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/cloudweave/engine/pkg/store"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

func TestSaveLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	w := &store.WorkflowState{ID: "wf-1", Name: "deploy", Status: store.WorkflowRunning}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "deploy" || got.Status != store.WorkflowRunning {
		t.Errorf("unexpected loaded state: %+v", got)
	}
}

func TestLoad_NotFound(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "ghost")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSave_IsolatedFromCallerMutation(t *testing.T) {
	s := New()
	ctx := context.Background()

	w := &store.WorkflowState{ID: "wf-1", Name: "deploy", Status: store.WorkflowRunning}
	if err := s.Save(ctx, w); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	w.Name = "mutated-after-save"

	got, _ := s.Load(ctx, "wf-1")
	if got.Name != "deploy" {
		t.Errorf("expected store to be unaffected by post-Save mutation, got name %q", got.Name)
	}

	got.Name = "mutated-after-load"
	got2, _ := s.Load(ctx, "wf-1")
	if got2.Name != "deploy" {
		t.Errorf("expected store to be unaffected by post-Load mutation, got name %q", got2.Name)
	}
}

func TestList_Filter(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Save(ctx, &store.WorkflowState{ID: "wf-1", Name: "deploy", Status: store.WorkflowRunning})
	s.Save(ctx, &store.WorkflowState{ID: "wf-2", Name: "deploy", Status: store.WorkflowCompleted})
	s.Save(ctx, &store.WorkflowState{ID: "wf-3", Name: "teardown", Status: store.WorkflowCompleted})

	all, err := s.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 workflows, got %d", len(all))
	}

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
	s := New()
	ctx := context.Background()
	s.Save(ctx, &store.WorkflowState{ID: "wf-1"})

	if err := s.Delete(ctx, "wf-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "wf-1"); err == nil {
		t.Fatalf("expected error loading deleted workflow")
	}
}

func TestDelete_NotFound(t *testing.T) {
	s := New()
	err := s.Delete(context.Background(), "ghost")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	s := New()
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
