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

// Package memstore provides an in-memory store.Store implementation,
// useful for tests and for single-process deployments that do not
// need state to survive a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cloudweave/engine/pkg/store"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Store is a map-backed store.Store. All methods copy in and out, so
// callers and the Store never share WorkflowState memory.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*store.WorkflowState
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		workflows: make(map[string]*store.WorkflowState),
	}
}

// Save creates or overwrites the workflow state under state.ID.
func (s *Store) Save(ctx context.Context, state *store.WorkflowState) error {
	clone := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[clone.ID] = clone
	return nil
}

// Load returns the workflow state stored under id.
func (s *Store) Load(ctx context.Context, id string) (*store.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.workflows[id]
	if !exists {
		return nil, &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return w.Clone(), nil
}

// List returns every workflow matching filter.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]*store.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.WorkflowState
	for _, w := range s.workflows {
		if filter.Matches(w) {
			result = append(result, w.Clone())
		}
	}
	return result, nil
}

// Delete removes the workflow state stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return &engineerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(s.workflows, id)
	return nil
}

// Cleanup removes every terminal workflow whose CompletedAt predates
// maxAge, returning the number removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, w := range s.workflows {
		if !w.Status.Terminal() || w.CompletedAt == nil {
			continue
		}
		if w.CompletedAt.Before(cutoff) {
			delete(s.workflows, id)
			removed++
		}
	}
	return removed, nil
}
