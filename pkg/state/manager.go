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

// Package state implements a write-through cache over a store.Store:
// it keeps every non-purged WorkflowState resident in memory, enforces
// the workflow/step status machines, and serializes concurrent updates
// to the same workflow behind a per-workflow lock.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	engineerrors "github.com/cloudweave/engine/pkg/errors"
	"github.com/cloudweave/engine/pkg/store"
)

// workflowTransitions enumerates the workflow status machine. A status
// not present as a key has no outgoing edges (terminal).
var workflowTransitions = map[store.WorkflowStatus][]store.WorkflowStatus{
	store.WorkflowCreated: {store.WorkflowPending, store.WorkflowCancelled},
	store.WorkflowPending: {store.WorkflowRunning, store.WorkflowCancelled},
	store.WorkflowRunning: {store.WorkflowCompleted, store.WorkflowFailed, store.WorkflowCancelled, store.WorkflowPaused},
	store.WorkflowPaused:  {store.WorkflowRunning, store.WorkflowCancelled},
}

// stepTransitions enumerates the step status machine.
var stepTransitions = map[store.StepStatus][]store.StepStatus{
	store.StepPending: {store.StepRunning, store.StepSkipped},
	store.StepRunning: {store.StepCompleted, store.StepFailed},
}

func allowedTransition(table map[store.WorkflowStatus][]store.WorkflowStatus, from, to store.WorkflowStatus) bool {
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func allowedStepTransition(from, to store.StepStatus) bool {
	for _, candidate := range stepTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// entry pairs a cached WorkflowState with the lock serializing updates
// to it.
type entry struct {
	mu    sync.Mutex
	state *store.WorkflowState
}

// Manager is the engine's State Manager: the sole owner of every
// WorkflowState, resident in memory and write-through to a store.Store.
type Manager struct {
	backend store.Store

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a Manager backed by st. It does not eagerly load existing
// workflows from st; callers that need a warm cache should call
// Reload.
func New(st store.Store) *Manager {
	return &Manager{
		backend: st,
		entries: make(map[string]*entry),
	}
}

// Reload populates the in-memory cache from the backing store,
// discarding any cached entries not present there.
func (m *Manager) Reload(ctx context.Context) error {
	workflows, err := m.backend.List(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("failed to reload workflows: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry, len(workflows))
	for _, w := range workflows {
		m.entries[w.ID] = &entry{state: w}
	}
	return nil
}

func (m *Manager) entryFor(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[id]
	if !exists {
		e = &entry{}
		m.entries[id] = e
	}
	return e
}

// CreateWorkflow materializes a new WorkflowState with status=CREATED.
// It fails if id already exists.
func (m *Manager) CreateWorkflow(ctx context.Context, id, name string, inputs map[string]any) (*store.WorkflowState, error) {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		return nil, &engineerrors.ValidationError{Field: "id", Message: fmt.Sprintf("workflow %q already exists", id)}
	}

	w := &store.WorkflowState{
		ID:        id,
		Name:      name,
		Status:    store.WorkflowCreated,
		Steps:     make(map[string]store.StepState),
		Inputs:    inputs,
		CreatedAt: time.Now(),
	}
	if err := m.backend.Save(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}
	e.state = w
	return w.Clone(), nil
}

// Get returns a snapshot of the workflow stored under id.
func (m *Manager) Get(id string) (*store.WorkflowState, error) {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return e.state.Clone(), nil
}

// AddStep registers a new step under workflowID with initial
// status=PENDING. It fails if the step already exists.
func (m *Manager) AddStep(ctx context.Context, workflowID, stepID, name string) (*store.StepState, error) {
	e := m.entryFor(workflowID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	if _, exists := e.state.Steps[stepID]; exists {
		return nil, &engineerrors.ValidationError{Field: "step_id", Message: fmt.Sprintf("step %q already exists in workflow %q", stepID, workflowID)}
	}

	pre := e.state.Clone()

	step := store.StepState{ID: stepID, Name: name, Status: store.StepPending}
	e.state.Steps[stepID] = step

	if err := m.backend.Save(ctx, e.state); err != nil {
		e.state = pre
		return nil, fmt.Errorf("failed to persist step: %w", err)
	}
	return &step, nil
}

// UpdateWorkflowStatus transitions the workflow's status, enforcing
// the state machine and stamping started_at/completed_at. If the store
// write fails, the cache is rolled back to its pre-write value.
func (m *Manager) UpdateWorkflowStatus(ctx context.Context, id string, status store.WorkflowStatus, errMessage string) (*store.WorkflowState, error) {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	if e.state.Status == status {
		return e.state.Clone(), nil
	}
	if !allowedTransition(workflowTransitions, e.state.Status, status) {
		return nil, &engineerrors.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("workflow %q cannot transition from %s to %s", id, e.state.Status, status),
		}
	}

	pre := e.state.Clone()

	e.state.Status = status
	now := time.Now()
	if status == store.WorkflowRunning && e.state.StartedAt == nil {
		e.state.StartedAt = &now
	} else if status.Terminal() && e.state.CompletedAt == nil {
		e.state.CompletedAt = &now
	}
	if errMessage != "" {
		e.state.ErrorMessage = errMessage
	}

	if err := m.backend.Save(ctx, e.state); err != nil {
		e.state = pre
		return nil, fmt.Errorf("failed to persist workflow status: %w", err)
	}
	return e.state.Clone(), nil
}

// UpdateStepStatus transitions a step's status, enforcing the step
// state machine, stamping timestamps, and merging outputs
// (last-writer wins per key). If the store write fails, the cache is
// rolled back.
func (m *Manager) UpdateStepStatus(ctx context.Context, workflowID, stepID string, status store.StepStatus, errMessage string, outputs map[string]any) (*store.StepState, error) {
	e := m.entryFor(workflowID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	step, exists := e.state.Steps[stepID]
	if !exists {
		return nil, &engineerrors.NotFoundError{Resource: "step", ID: stepID}
	}
	if step.Status != status && !allowedStepTransition(step.Status, status) {
		return nil, &engineerrors.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("step %q of workflow %q cannot transition from %s to %s", stepID, workflowID, step.Status, status),
		}
	}

	pre := e.state.Clone()

	step.Status = status
	now := time.Now()
	switch status {
	case store.StepRunning:
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
	case store.StepCompleted, store.StepFailed, store.StepSkipped:
		if step.CompletedAt == nil {
			step.CompletedAt = &now
		}
	}
	if errMessage != "" {
		step.ErrorMessage = errMessage
	}
	if outputs != nil {
		if step.Outputs == nil {
			step.Outputs = make(map[string]any, len(outputs))
		}
		for k, v := range outputs {
			step.Outputs[k] = v
		}
	}
	e.state.Steps[stepID] = step

	if err := m.backend.Save(ctx, e.state); err != nil {
		e.state = pre
		return nil, fmt.Errorf("failed to persist step status: %w", err)
	}
	return &step, nil
}

// RecordStepRetry stamps retryCount/maxRetries on a step without
// changing its status, used by the workflow executor to record a
// retry attempt while the step remains RUNNING.
func (m *Manager) RecordStepRetry(ctx context.Context, workflowID, stepID string, retryCount, maxRetries int) error {
	e := m.entryFor(workflowID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return &engineerrors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	step, exists := e.state.Steps[stepID]
	if !exists {
		return &engineerrors.NotFoundError{Resource: "step", ID: stepID}
	}

	pre := e.state.Clone()

	step.RetryCount = retryCount
	step.MaxRetries = maxRetries
	e.state.Steps[stepID] = step

	if err := m.backend.Save(ctx, e.state); err != nil {
		e.state = pre
		return fmt.Errorf("failed to persist step retry: %w", err)
	}
	return nil
}

// List delegates to the store and reconciles the cache with its
// result.
func (m *Manager) List(ctx context.Context, filter store.Filter) ([]*store.WorkflowState, error) {
	workflows, err := m.backend.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, w := range workflows {
		if e, exists := m.entries[w.ID]; exists {
			e.mu.Lock()
			e.state = w
			e.mu.Unlock()
		} else {
			m.entries[w.ID] = &entry{state: w}
		}
	}
	m.mu.Unlock()

	return workflows, nil
}

// Cleanup delegates to the store and evicts the same terminal,
// older-than-maxAge workflows from the cache, mirroring exactly the
// condition the store applied.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := m.backend.Cleanup(ctx, maxAge)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.mu.Lock()
		purge := e.state != nil && e.state.Status.Terminal() && e.state.CompletedAt != nil && e.state.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if purge {
			delete(m.entries, id)
		}
	}
	return removed, nil
}
