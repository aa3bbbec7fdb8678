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

// Package engine drives a single workflow's dependency graph to
// completion: it computes the ready-set of steps, dispatches them
// concurrently through a step executor registry, applies the per-step
// retry policy, and propagates SKIPPED/CANCELLED through the graph.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cloudweave/engine/pkg/blueprint"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
	"github.com/cloudweave/engine/pkg/executor"
	"github.com/cloudweave/engine/pkg/metrics"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
	"github.com/cloudweave/engine/pkg/tracing"
)

// Config tunes the dispatch loop's behavior beyond what a step's own
// definition specifies.
type Config struct {
	// DefaultMaxRetries is used for steps whose StepDefinition.MaxRetries
	// is zero.
	DefaultMaxRetries int

	// StepRetryDelay bounds the pause between a failed attempt and the
	// next retry.
	StepRetryDelay time.Duration

	// MaxConcurrentSteps bounds how many steps of a single workflow may
	// run at once. Zero means unbounded (every ready step is dispatched
	// immediately).
	MaxConcurrentSteps int
}

// Default returns the engine's default tuning.
func Default() Config {
	return Config{
		DefaultMaxRetries:  3,
		StepRetryDelay:     2 * time.Second,
		MaxConcurrentSteps: 0,
	}
}

// Engine runs workflow definitions against a state.Manager and an
// executor.Registry. One Engine may drive many concurrent workflow
// runs; each Run call owns its own dispatch loop and goroutines.
type Engine struct {
	manager  *state.Manager
	registry *executor.Registry
	resolver *resolver
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	metricsMu sync.RWMutex
	metrics   *metrics.Collector

	tracerMu sync.RWMutex
	tracer   trace.Tracer
}

// New creates an Engine. logger may be nil, in which case slog.Default
// is used.
func New(manager *state.Manager, registry *executor.Registry, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		manager:  manager,
		registry: registry,
		resolver: newResolver(),
		cfg:      cfg,
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// predEdge is one incoming dependency edge: predID reaching the
// terminal status selected by onSuccess makes the edge's target
// eligible.
type predEdge struct {
	predID    string
	onSuccess bool
}

func buildPredecessors(def *blueprint.Definition) map[string][]predEdge {
	preds := make(map[string][]predEdge)
	for id, step := range def.Steps {
		for _, succ := range step.OnSuccess {
			preds[succ] = append(preds[succ], predEdge{predID: id, onSuccess: true})
		}
		for _, succ := range step.OnFailure {
			preds[succ] = append(preds[succ], predEdge{predID: id, onSuccess: false})
		}
	}
	return preds
}

// plan scans every PENDING step and partitions it into ready (every
// incoming edge satisfied), skip (some incoming edge can never be
// satisfied because its predecessor reached the wrong terminal
// status), or left pending (waiting on an edge whose predecessor has
// not yet terminated). Both returned slices are sorted for
// deterministic dispatch order.
func plan(preds map[string][]predEdge, steps map[string]store.StepState) (ready, skip []string) {
	for id, st := range steps {
		if st.Status != store.StepPending {
			continue
		}

		dead := false
		waiting := false
		for _, edge := range preds[id] {
			predState, ok := steps[edge.predID]
			if !ok {
				waiting = true
				continue
			}
			switch {
			case edge.onSuccess && predState.Status == store.StepCompleted:
			case !edge.onSuccess && predState.Status == store.StepFailed:
			case predState.Status == store.StepPending || predState.Status == store.StepRunning:
				waiting = true
			default:
				// Predecessor reached a terminal status that does not
				// satisfy this edge; it never will again, so this edge
				// can never fire.
				dead = true
			}
		}

		switch {
		case dead:
			skip = append(skip, id)
		case !waiting:
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	sort.Strings(skip)
	return ready, skip
}

// Prepare materializes workflowID and its steps with status=CREATED,
// leaving it in the admission queue's hands. A scheduler durably
// queues a prepared-but-not-started workflow by transitioning it to
// PENDING and holding its id until admission; Start then moves it to
// RUNNING and drives the dispatch loop.
func (e *Engine) Prepare(ctx context.Context, workflowID string, def *blueprint.Definition, inputs map[string]any) (*store.WorkflowState, error) {
	wf, err := e.manager.CreateWorkflow(ctx, workflowID, def.Name, inputs)
	if err != nil {
		return nil, err
	}
	for id, step := range def.Steps {
		if _, err := e.manager.AddStep(ctx, workflowID, id, step.ID); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

// Start transitions an already-prepared, PENDING workflowID to
// RUNNING and drives the dispatch loop to a terminal status. It
// blocks until the workflow completes, fails, or is cancelled via
// Cancel or ctx.
func (e *Engine) Start(ctx context.Context, workflowID string, def *blueprint.Definition, deploymentID string) error {
	if _, err := e.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowRunning, ""); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[workflowID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, workflowID)
		e.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	if mc := e.metricsCollector(); mc != nil {
		mc.RecordWorkflowStart(ctx, workflowID)
	}

	var span trace.Span
	if t := e.currentTracer(); t != nil {
		runCtx, span = tracing.StartWorkflowRun(runCtx, t, workflowID, def.Name)
	}

	runErr := e.dispatch(runCtx, workflowID, def, deploymentID)

	status := "unknown"
	if wf, err := e.manager.Get(workflowID); err == nil {
		status = string(wf.Status)
	}
	if mc := e.metricsCollector(); mc != nil {
		mc.RecordWorkflowComplete(context.Background(), workflowID, status, time.Since(start))
	}
	if span != nil {
		tracing.EndWorkflowRun(span, status, runErr)
	}

	return runErr
}

// Run is a convenience wrapper around Prepare, an immediate PENDING
// transition, and Start, for callers that drive a workflow directly
// without going through a scheduler's admission queue.
func (e *Engine) Run(ctx context.Context, workflowID string, def *blueprint.Definition, deploymentID string, inputs map[string]any) error {
	if _, err := e.Prepare(ctx, workflowID, def, inputs); err != nil {
		return err
	}
	if _, err := e.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowPending, ""); err != nil {
		return err
	}
	return e.Start(ctx, workflowID, def, deploymentID)
}

// SetMetrics wires a Prometheus metrics collector; subsequent runs record
// workflow and step counters/histograms through it. Safe to call
// concurrently with in-flight runs.
func (e *Engine) SetMetrics(m *metrics.Collector) {
	e.metricsMu.Lock()
	e.metrics = m
	e.metricsMu.Unlock()
}

func (e *Engine) metricsCollector() *metrics.Collector {
	e.metricsMu.RLock()
	defer e.metricsMu.RUnlock()
	return e.metrics
}

// SetTracer wires an OpenTelemetry tracer; subsequent runs open a root
// span per workflow run and a child span per step through it. Safe to
// call concurrently with in-flight runs.
func (e *Engine) SetTracer(t trace.Tracer) {
	e.tracerMu.Lock()
	e.tracer = t
	e.tracerMu.Unlock()
}

func (e *Engine) currentTracer() trace.Tracer {
	e.tracerMu.RLock()
	defer e.tracerMu.RUnlock()
	return e.tracer
}

// Cancel interrupts workflowID's dispatch loop, if it is currently
// running under this Engine. It is a no-op if the workflow is not
// running here (already terminal, or owned by a different Engine
// instance).
func (e *Engine) Cancel(workflowID string) {
	e.mu.Lock()
	cancel, ok := e.cancels[workflowID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) dispatch(runCtx context.Context, workflowID string, def *blueprint.Definition, deploymentID string) error {
	preds := buildPredecessors(def)

	var wg sync.WaitGroup
	completions := make(chan string, len(def.Steps))
	var sem chan struct{}
	if e.cfg.MaxConcurrentSteps > 0 {
		sem = make(chan struct{}, e.cfg.MaxConcurrentSteps)
	}

	dispatched := make(map[string]bool, len(def.Steps))

	for {
		select {
		case <-runCtx.Done():
			wg.Wait()
			return e.handleCancellation(ctxErr(runCtx), workflowID, def)
		default:
		}

		wf, err := e.manager.Get(workflowID)
		if err != nil {
			return err
		}

		ready, skip := plan(preds, wf.Steps)
		for _, id := range skip {
			if _, err := e.manager.UpdateStepStatus(runCtx, workflowID, id, store.StepSkipped, "", nil); err != nil {
				e.logger.Error("failed to mark step skipped", "workflow_id", workflowID, "step_id", id, "error", err)
			}
		}
		if len(skip) > 0 {
			continue
		}

		running := 0
		pending := 0
		for _, st := range wf.Steps {
			switch st.Status {
			case store.StepRunning:
				running++
			case store.StepPending:
				pending++
			}
		}

		if len(ready) == 0 && running == 0 {
			if runCtx.Err() != nil {
				wg.Wait()
				return e.handleCancellation(ctxErr(runCtx), workflowID, def)
			}
			if pending > 0 {
				_, _ = e.manager.UpdateWorkflowStatus(runCtx, workflowID, store.WorkflowFailed, "unreachable steps")
				return &engineerrors.ExecutionError{Message: fmt.Sprintf("workflow %q has unreachable steps", workflowID)}
			}
			return e.finalize(runCtx, workflowID, def, wf)
		}

		for _, id := range ready {
			if dispatched[id] {
				continue
			}
			dispatched[id] = true
			step := def.Steps[id]
			if _, err := e.manager.UpdateStepStatus(runCtx, workflowID, id, store.StepRunning, "", nil); err != nil {
				e.logger.Error("failed to mark step running", "workflow_id", workflowID, "step_id", id, "error", err)
				continue
			}
			wg.Add(1)
			go e.runStep(runCtx, workflowID, deploymentID, step, completions, &wg, sem)
		}

		select {
		case <-runCtx.Done():
			wg.Wait()
			return e.handleCancellation(ctxErr(runCtx), workflowID, def)
		case <-completions:
			drainCompletions(completions)
		}
	}
}

// drainCompletions consumes any additional already-buffered
// completion signals so a burst of simultaneous step terminations
// triggers a single re-plan instead of one per step.
func drainCompletions(completions chan string) {
	for {
		select {
		case <-completions:
		default:
			return
		}
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}

// finalize determines the workflow's terminal status once no step is
// ready, running, or pending. A FAILED step without a declared
// on_failure handler makes the whole workflow FAILED; otherwise the
// workflow COMPLETED.
func (e *Engine) finalize(ctx context.Context, workflowID string, def *blueprint.Definition, wf *store.WorkflowState) error {
	for id, st := range wf.Steps {
		if st.Status != store.StepFailed {
			continue
		}
		if len(def.Steps[id].OnFailure) == 0 {
			reason := fmt.Sprintf("step %q failed: %s", id, st.ErrorMessage)
			if _, err := e.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowFailed, reason); err != nil {
				return err
			}
			return &engineerrors.ExecutionError{Message: fmt.Sprintf("workflow %q %s", workflowID, reason)}
		}
	}
	_, err := e.manager.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowCompleted, "")
	return err
}

// handleCancellation transitions every RUNNING step to best-effort
// cancelled and every PENDING step to SKIPPED, then marks the
// workflow terminal. A deadline (a scheduler-imposed
// max_workflow_timeout) ends the workflow FAILED with reason
// "timeout"; any other cancellation cause ends it CANCELLED.
func (e *Engine) handleCancellation(cause error, workflowID string, def *blueprint.Definition) error {
	bg := context.Background()
	wf, err := e.manager.Get(workflowID)
	if err != nil {
		return err
	}
	for id, st := range wf.Steps {
		switch st.Status {
		case store.StepRunning:
			_ = e.registry.Cancel(bg, def.Steps[id])
		case store.StepPending:
			_, _ = e.manager.UpdateStepStatus(bg, workflowID, id, store.StepSkipped, "", nil)
		}
	}

	status, reason := store.WorkflowCancelled, cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		status, reason = store.WorkflowFailed, "timeout"
	}
	if _, err := e.manager.UpdateWorkflowStatus(bg, workflowID, status, reason); err != nil {
		return err
	}
	return cause
}

// runStep executes step, retrying on failure up to its configured (or
// default) retry budget with a bounded delay between attempts, and
// records the outcome through the state manager. It always signals
// completions with step.ID on return, even when cancelled.
func (e *Engine) runStep(ctx context.Context, workflowID, deploymentID string, step blueprint.StepDefinition, completions chan<- string, wg *sync.WaitGroup, sem chan struct{}) {
	defer wg.Done()
	defer func() { completions <- step.ID }()

	var span trace.Span
	if t := e.currentTracer(); t != nil {
		ctx, span = tracing.StartStep(ctx, t, step.ID, string(step.Type))
	}
	finalStatus := string(store.StepFailed)
	var finalErr error
	if span != nil {
		defer func() { tracing.EndStep(span, finalStatus, finalErr) }()
	}

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			finalErr = ctx.Err()
			e.failStep(workflowID, step.ID, ctx.Err())
			return
		}
	}

	maxRetries := step.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.DefaultMaxRetries
	}

	wf, err := e.manager.Get(workflowID)
	if err != nil {
		finalErr = err
		e.failStep(workflowID, step.ID, err)
		return
	}
	inputs, err := e.resolver.resolveInputs(step.Inputs, wf)
	if err != nil {
		finalErr = err
		e.failStep(workflowID, step.ID, err)
		return
	}

	stepStart := time.Now()
	recordStep := func(status string, cause error) {
		finalStatus, finalErr = status, cause
		if mc := e.metricsCollector(); mc != nil {
			mc.RecordStepComplete(context.Background(), string(step.Type), status, time.Since(stepStart))
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			recordStep(string(store.StepFailed), ctx.Err())
			e.failStep(workflowID, step.ID, ctx.Err())
			return
		default:
		}

		outputs, execErr := e.registry.Execute(ctx, deploymentID, step, inputs)
		if execErr == nil {
			if _, err := e.manager.UpdateStepStatus(context.Background(), workflowID, step.ID, store.StepCompleted, "", outputs); err != nil {
				e.logger.Error("failed to record step completion", "workflow_id", workflowID, "step_id", step.ID, "error", err)
			}
			recordStep(string(store.StepCompleted), nil)
			return
		}
		lastErr = execErr
		if attempt >= maxRetries || ctx.Err() != nil {
			break
		}
		if err := e.manager.RecordStepRetry(context.Background(), workflowID, step.ID, attempt+1, maxRetries); err != nil {
			e.logger.Error("failed to record step retry", "workflow_id", workflowID, "step_id", step.ID, "error", err)
		}

		timer := time.NewTimer(e.cfg.StepRetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			recordStep(string(store.StepFailed), ctx.Err())
			e.failStep(workflowID, step.ID, ctx.Err())
			return
		}
	}

	recordStep(string(store.StepFailed), lastErr)
	e.failStep(workflowID, step.ID, lastErr)
}

func (e *Engine) failStep(workflowID, stepID string, cause error) {
	if _, err := e.manager.UpdateStepStatus(context.Background(), workflowID, stepID, store.StepFailed, cause.Error(), nil); err != nil {
		e.logger.Error("failed to record step failure", "workflow_id", workflowID, "step_id", stepID, "error", err)
	}
}
