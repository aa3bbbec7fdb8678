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

// Package store defines the durable representation of workflow state
// and the Store contract its backends implement. The engine's state
// manager is the only caller; a Store itself holds no workflow-status
// business logic, only persistence.
package store

import (
	"context"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowCreated   WorkflowStatus = "CREATED"
	WorkflowPending   WorkflowStatus = "PENDING"
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowPaused    WorkflowStatus = "PAUSED"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowFailed    WorkflowStatus = "FAILED"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
)

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepState is the durable record of one step's execution within a
// WorkflowState.
type StepState struct {
	ID           string
	Name         string
	Status       StepStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Outputs      map[string]any
	RetryCount   int
	MaxRetries   int
}

// WorkflowState is the durable record of a workflow run: its current
// status, the state of each of its steps, and the input/output data
// that flowed through it. Store implementations persist and retrieve
// WorkflowState by value; callers must not rely on aliasing between
// what they pass to Save and what a later Load returns.
type WorkflowState struct {
	ID           string
	Name         string
	Status       WorkflowStatus
	Steps        map[string]StepState
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Inputs       map[string]any
	Outputs      map[string]any
	Metadata     map[string]any
	ErrorMessage string
}

// Clone returns a deep copy of w, so that mutations the caller makes
// to the returned value (or the receiver) are never visible through
// the other.
func (w *WorkflowState) Clone() *WorkflowState {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = make(map[string]StepState, len(w.Steps))
	for id, s := range w.Steps {
		out.Steps[id] = s.clone()
	}
	out.Inputs = cloneAnyMap(w.Inputs)
	out.Outputs = cloneAnyMap(w.Outputs)
	out.Metadata = cloneAnyMap(w.Metadata)
	if w.StartedAt != nil {
		t := *w.StartedAt
		out.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func (s StepState) clone() StepState {
	out := s
	out.Outputs = cloneAnyMap(s.Outputs)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Filter selects workflows by equality on one or more fields. Zero
// fields are not applied; an empty Filter matches every workflow.
// Multiple set fields combine with AND.
type Filter struct {
	Status WorkflowStatus
	Name   string
}

// Matches reports whether w satisfies every field set on f.
func (f Filter) Matches(w *WorkflowState) bool {
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.Name != "" && w.Name != f.Name {
		return false
	}
	return true
}

// Store is the durable backend behind the engine's workflow state.
// Implementations must make Save atomic with respect to concurrent
// Load/List calls: a reader never observes a partially written
// WorkflowState.
type Store interface {
	// Save creates or overwrites the workflow state under state.ID.
	Save(ctx context.Context, state *WorkflowState) error

	// Load returns the workflow state stored under id, or a
	// *errors.NotFoundError if none exists.
	Load(ctx context.Context, id string) (*WorkflowState, error)

	// List returns every workflow matching filter, in no particular
	// order.
	List(ctx context.Context, filter Filter) ([]*WorkflowState, error)

	// Delete removes the workflow state stored under id. Deleting a
	// missing id is a *errors.NotFoundError.
	Delete(ctx context.Context, id string) error

	// Cleanup removes every completed/failed/cancelled workflow whose
	// CompletedAt is older than maxAge, returning the number removed.
	// Workflows that are still CREATED, PENDING, RUNNING, or PAUSED
	// are never removed regardless of age.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// Terminal reports whether status is a terminal workflow status —
// one Cleanup is allowed to garbage-collect.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}
