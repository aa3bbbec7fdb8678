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

// Package scheduler owns the FIFO admission queue and in-flight set
// that bound how many workflows run concurrently, and the retention
// GC loop that purges old terminal workflows from the State Manager.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudweave/engine/internal/config"
	"github.com/cloudweave/engine/pkg/blueprint"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
)

// runner is the subset of *engine.Engine the scheduler depends on.
// Defined here (rather than imported) so pkg/scheduler does not need
// to import pkg/engine just to name its type; any type satisfying it
// works, matching the engine's own SubWorkflowRunner injection idiom.
type runner interface {
	Prepare(ctx context.Context, workflowID string, def *blueprint.Definition, inputs map[string]any) (*store.WorkflowState, error)
	Start(ctx context.Context, workflowID string, def *blueprint.Definition, deploymentID string) error
	Cancel(workflowID string)
}

type queueItem struct {
	workflowID   string
	def          *blueprint.Definition
	deploymentID string
}

// Scheduler admits queued workflow-ids into a bounded in-flight set,
// FIFO across arrivals, and periodically asks the State Manager to
// purge old terminal workflows.
type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *state.Manager
	engine  runner
	logger  *slog.Logger

	mu       sync.Mutex
	queue    []queueItem
	inFlight map[string]struct{}
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	wake     chan struct{}
}

// New creates a Scheduler. logger may be nil, in which case
// slog.Default is used.
func New(manager *state.Manager, eng runner, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		manager:  manager,
		engine:   eng,
		logger:   logger.With("component", "scheduler"),
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Submit prepares workflowID (status=CREATED), admits it to PENDING,
// and enqueues it for dispatch. It fails if workflowID already
// exists.
func (s *Scheduler) Submit(ctx context.Context, workflowID string, def *blueprint.Definition, deploymentID string, inputs map[string]any) error {
	if _, err := s.engine.Prepare(ctx, workflowID, def, inputs); err != nil {
		return err
	}
	if _, err := s.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowPending, ""); err != nil {
		return err
	}

	s.mu.Lock()
	s.queue = append(s.queue, queueItem{workflowID: workflowID, def: def, deploymentID: deploymentID})
	s.mu.Unlock()

	s.nudge()
	return nil
}

// Cancel interrupts workflowID. A queued-but-not-started workflow is
// removed from the queue and marked CANCELLED directly; an in-flight
// workflow is interrupted through the engine's own cancellation path.
func (s *Scheduler) Cancel(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	for i, item := range s.queue {
		if item.workflowID != workflowID {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.mu.Unlock()
		_, err := s.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowCancelled, "cancelled before dispatch")
		return err
	}
	_, inFlight := s.inFlight[workflowID]
	s.mu.Unlock()

	if !inFlight {
		return &engineerrors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	s.engine.Cancel(workflowID)
	return nil
}

// Start spawns the dispatch and GC loops. Idempotent: a second call
// while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.dispatchLoop(runCtx) }()
	go func() { defer s.wg.Done(); s.gcLoop(runCtx) }()
}

// Stop cancels the dispatch and GC loops and waits for them, and for
// every in-flight workflow, to return. In-flight workflows are not
// interrupted, so Stop blocks until they complete; call Cancel
// explicitly to interrupt one. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop wakes on enqueue, on an in-flight workflow's
// termination, or at most once a second, and admits queued workflows
// while the in-flight set has room.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		s.admitReady(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) admitReady(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || len(s.inFlight) >= s.cfg.MaxConcurrentWorkflows {
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.inFlight[item.workflowID] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runWorkflow(ctx, item)
	}
}

// runWorkflow bounds the workflow's wall-clock budget with
// max_workflow_timeout, detached from the dispatcher's own context so
// Stop() never interrupts an in-flight run.
func (s *Scheduler) runWorkflow(dispatchCtx context.Context, item queueItem) {
	defer s.wg.Done()

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxWorkflowTimeout)
	defer cancel()

	if err := s.engine.Start(runCtx, item.workflowID, item.def, item.deploymentID); err != nil {
		s.logger.Error("workflow run ended in error", "workflow_id", item.workflowID, "error", err)
	}

	s.mu.Lock()
	delete(s.inFlight, item.workflowID)
	s.mu.Unlock()
	s.nudge()
}

// gcLoop asks the State Manager to purge terminal workflows older
// than history_retention on every cleanup_interval tick.
func (s *Scheduler) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.manager.Cleanup(ctx, s.cfg.HistoryRetention)
			if err != nil {
				s.logger.Error("retention cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("retention cleanup removed workflows", "count", removed)
			}
		}
	}
}

// Status summarizes the scheduler's admission state.
type Status struct {
	QueueDepth             int
	InFlight               int
	MaxConcurrentWorkflows int
	Running                bool
}

// Status returns a snapshot of the queue depth, in-flight count,
// configured concurrency cap, and whether the dispatch/GC loops are
// running.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		QueueDepth:             len(s.queue),
		InFlight:               len(s.inFlight),
		MaxConcurrentWorkflows: s.cfg.MaxConcurrentWorkflows,
		Running:                s.running,
	}
}

// QueueStatus implements metrics.QueueSource.
func (s *Scheduler) QueueStatus() (queueDepth, inFlight int) {
	st := s.Status()
	return st.QueueDepth, st.InFlight
}
