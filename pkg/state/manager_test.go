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

package state

import (
	"context"
	"testing"
	"time"

	engineerrors "github.com/cloudweave/engine/pkg/errors"
	"github.com/cloudweave/engine/pkg/store"
	"github.com/cloudweave/engine/pkg/store/memstore"
)

func TestCreateWorkflow(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	w, err := m.CreateWorkflow(ctx, "wf-1", "deploy", map[string]any{"region": "us-east-1"})
	if err != nil {
		t.Fatalf("CreateWorkflow() error = %v", err)
	}
	if w.Status != store.WorkflowCreated {
		t.Errorf("expected status CREATED, got %s", w.Status)
	}
	if w.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be stamped")
	}
}

func TestCreateWorkflow_Duplicate(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	_, err := m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	var valErr *engineerrors.ValidationError
	if !engineerrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	m := New(memstore.New())
	_, err := m.Get("ghost")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAddStep(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)

	step, err := m.AddStep(ctx, "wf-1", "s1", "create resource")
	if err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	if step.Status != store.StepPending {
		t.Errorf("expected step PENDING, got %s", step.Status)
	}

	w, _ := m.Get("wf-1")
	if _, ok := w.Steps["s1"]; !ok {
		t.Errorf("expected step s1 to be reflected in workflow snapshot")
	}
}

func TestAddStep_Duplicate(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.AddStep(ctx, "wf-1", "s1", "create")

	_, err := m.AddStep(ctx, "wf-1", "s1", "create again")
	var valErr *engineerrors.ValidationError
	if !engineerrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddStep_UnknownWorkflow(t *testing.T) {
	m := New(memstore.New())
	_, err := m.AddStep(context.Background(), "ghost", "s1", "x")
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateWorkflowStatus_ValidChain(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)

	if _, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPending, ""); err != nil {
		t.Fatalf("CREATED->PENDING error = %v", err)
	}

	w, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")
	if err != nil {
		t.Fatalf("PENDING->RUNNING error = %v", err)
	}
	if w.StartedAt == nil {
		t.Errorf("expected StartedAt to be stamped on first RUNNING")
	}

	w, err = m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowCompleted, "")
	if err != nil {
		t.Fatalf("RUNNING->COMPLETED error = %v", err)
	}
	if w.CompletedAt == nil {
		t.Errorf("expected CompletedAt to be stamped on terminal status")
	}
}

func TestUpdateWorkflowStatus_RejectsInvalidTransition(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)

	_, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")
	var valErr *engineerrors.ValidationError
	if !engineerrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for CREATED->RUNNING, got %v", err)
	}
}

func TestUpdateWorkflowStatus_RejectsFromTerminal(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPending, "")
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowCompleted, "")

	_, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")
	var valErr *engineerrors.ValidationError
	if !engineerrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for transition out of terminal status, got %v", err)
	}
}

func TestUpdateWorkflowStatus_SetsErrorMessage(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPending, "")
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")

	w, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowFailed, "provider unreachable")
	if err != nil {
		t.Fatalf("UpdateWorkflowStatus() error = %v", err)
	}
	if w.ErrorMessage != "provider unreachable" {
		t.Errorf("expected error message to be set, got %q", w.ErrorMessage)
	}
}

func TestUpdateWorkflowStatus_PauseResume(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPending, "")
	m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, "")

	if _, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPaused, ""); err != nil {
		t.Fatalf("RUNNING->PAUSED error = %v", err)
	}
	if _, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowRunning, ""); err != nil {
		t.Fatalf("PAUSED->RUNNING error = %v", err)
	}
}

func TestUpdateStepStatus_ValidChainAndOutputMerge(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.AddStep(ctx, "wf-1", "s1", "create")

	if _, err := m.UpdateStepStatus(ctx, "wf-1", "s1", store.StepRunning, "", nil); err != nil {
		t.Fatalf("PENDING->RUNNING error = %v", err)
	}

	step, err := m.UpdateStepStatus(ctx, "wf-1", "s1", store.StepCompleted, "", map[string]any{"id": "res-1"})
	if err != nil {
		t.Fatalf("RUNNING->COMPLETED error = %v", err)
	}
	if step.Outputs["id"] != "res-1" {
		t.Errorf("expected output to be merged, got %+v", step.Outputs)
	}
	if step.CompletedAt == nil {
		t.Errorf("expected CompletedAt to be stamped")
	}

	step2, err := m.UpdateStepStatus(ctx, "wf-1", "s1", store.StepCompleted, "", map[string]any{"region": "us-east-1"})
	if err != nil {
		t.Fatalf("re-applying terminal status error = %v", err)
	}
	if step2.Outputs["id"] != "res-1" || step2.Outputs["region"] != "us-east-1" {
		t.Errorf("expected both outputs to be present after merge, got %+v", step2.Outputs)
	}
}

func TestUpdateStepStatus_RejectsInvalidTransition(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.AddStep(ctx, "wf-1", "s1", "create")

	_, err := m.UpdateStepStatus(ctx, "wf-1", "s1", store.StepCompleted, "", nil)
	var valErr *engineerrors.ValidationError
	if !engineerrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for PENDING->COMPLETED, got %v", err)
	}
}

func TestUpdateStepStatus_UnknownStep(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()
	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)

	_, err := m.UpdateStepStatus(ctx, "wf-1", "ghost", store.StepRunning, "", nil)
	var notFound *engineerrors.NotFoundError
	if !engineerrors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestList_Reconciliation(t *testing.T) {
	backend := memstore.New()
	m := New(backend)
	ctx := context.Background()

	m.CreateWorkflow(ctx, "wf-1", "deploy", nil)
	m.CreateWorkflow(ctx, "wf-2", "teardown", nil)
	m.UpdateWorkflowStatus(ctx, "wf-2", store.WorkflowPending, "")

	results, err := m.List(ctx, store.Filter{Status: store.WorkflowPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "wf-2" {
		t.Fatalf("expected only wf-2, got %+v", results)
	}
}

func TestCleanup_EvictsCacheInLockstepWithStore(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	m.CreateWorkflow(ctx, "wf-old", "deploy", nil)
	m.UpdateWorkflowStatus(ctx, "wf-old", store.WorkflowPending, "")
	m.UpdateWorkflowStatus(ctx, "wf-old", store.WorkflowRunning, "")
	m.UpdateWorkflowStatus(ctx, "wf-old", store.WorkflowCompleted, "")

	// Force CompletedAt into the past directly through the backend to
	// simulate an old run, since UpdateWorkflowStatus always stamps now().
	w, _ := m.Get("wf-old")
	old := time.Now().Add(-48 * time.Hour)
	w.CompletedAt = &old
	m.backend.Save(ctx, w)
	e := m.entryFor("wf-old")
	e.mu.Lock()
	e.state = w
	e.mu.Unlock()

	removed, err := m.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := m.Get("wf-old"); err == nil {
		t.Errorf("expected cache to no longer know about purged workflow")
	}
}

func TestUpdateWorkflowStatus_RollsBackOnStoreFailure(t *testing.T) {
	fs := &failingStore{Store: memstore.New()}
	m := New(fs)
	ctx := context.Background()

	if _, err := m.CreateWorkflow(ctx, "wf-1", "deploy", nil); err != nil {
		t.Fatalf("CreateWorkflow() error = %v", err)
	}

	fs.failNextSave = true
	_, err := m.UpdateWorkflowStatus(ctx, "wf-1", store.WorkflowPending, "")
	if err == nil {
		t.Fatalf("expected error from failing store")
	}

	w, err := m.Get("wf-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if w.Status != store.WorkflowCreated {
		t.Errorf("expected cache rolled back to CREATED, got %s", w.Status)
	}
}

// failingStore wraps a store.Store and can be told to fail its next
// Save call, to exercise the Manager's rollback-on-store-failure path.
type failingStore struct {
	store.Store
	failNextSave bool
}

func (f *failingStore) Save(ctx context.Context, w *store.WorkflowState) error {
	if f.failNextSave {
		f.failNextSave = false
		return errFakeStoreFailure
	}
	return f.Store.Save(ctx, w)
}

var errFakeStoreFailure = &engineerrors.InternalError{Message: "simulated store failure"}
