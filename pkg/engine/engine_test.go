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

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudweave/engine/pkg/blueprint"
	"github.com/cloudweave/engine/pkg/cloud/mockprovider"
	"github.com/cloudweave/engine/pkg/executor"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
	"github.com/cloudweave/engine/pkg/store/memstore"
)

// scriptedExecutor lets a test script each call to a step by ID,
// standing in for the provider-backed executors in graph-shape tests.
type scriptedExecutor struct {
	mu       sync.Mutex
	calls    map[string]int
	behavior func(step blueprint.StepDefinition, call int) (map[string]any, error)
}

func newScriptedExecutor(behavior func(step blueprint.StepDefinition, call int) (map[string]any, error)) *scriptedExecutor {
	return &scriptedExecutor{calls: make(map[string]int), behavior: behavior}
}

func (s *scriptedExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.calls[step.ID]++
	call := s.calls[step.ID]
	s.mu.Unlock()
	return s.behavior(step, call)
}

func (s *scriptedExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}

// blockingExecutor runs until its context is cancelled.
type blockingExecutor struct {
	started chan string
}

func (b *blockingExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	if b.started != nil {
		b.started <- step.ID
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}

func testEngine(t *testing.T, exec executor.StepExecutor, cfg Config) (*Engine, *state.Manager) {
	t.Helper()
	mgr := state.New(memstore.New())
	provider := mockprovider.New(mockprovider.Config{})
	registry := executor.NewRegistry(provider, nil)
	registry.Register(blueprint.StepTypeInline, exec)
	return New(mgr, registry, cfg, nil), mgr
}

func inlineStep(id string, onSuccess, onFailure []string) blueprint.StepDefinition {
	return blueprint.StepDefinition{ID: id, Type: blueprint.StepTypeInline, OnSuccess: onSuccess, OnFailure: onFailure}
}

func mustDefinition(t *testing.T, steps map[string]blueprint.StepDefinition) *blueprint.Definition {
	t.Helper()
	def, err := blueprint.New("wf-def", "test workflow", "", steps, nil, nil, nil)
	if err != nil {
		t.Fatalf("blueprint.New() error = %v", err)
	}
	return def
}

func alwaysSucceed(step blueprint.StepDefinition, call int) (map[string]any, error) {
	return map[string]any{"step": step.ID}, nil
}

func TestRun_ChainCompletes(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, nil),
		"s2": inlineStep("s2", []string{"s3"}, nil),
		"s3": inlineStep("s3", nil, nil),
	})
	e, mgr := testEngine(t, newScriptedExecutor(alwaysSucceed), Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, "wf-1", def, "", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wf, err := mgr.Get("wf-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("expected COMPLETED, got %s", wf.Status)
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		if wf.Steps[id].Status != store.StepCompleted {
			t.Errorf("step %s: expected COMPLETED, got %s", id, wf.Steps[id].Status)
		}
	}
}

// gatedExecutor blocks s2 and s3 until both have arrived, then releases
// them together, so a test can observe them running at the same time
// instead of inferring concurrency from eventual completion alone.
type gatedExecutor struct {
	mu      sync.Mutex
	arrived map[string]bool
	release chan struct{}
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{arrived: make(map[string]bool), release: make(chan struct{})}
}

func (g *gatedExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	if step.ID == "s2" || step.ID == "s3" {
		g.mu.Lock()
		g.arrived[step.ID] = true
		bothArrived := g.arrived["s2"] && g.arrived["s3"]
		g.mu.Unlock()
		if bothArrived {
			close(g.release)
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"step": step.ID}, nil
}

func (g *gatedExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}

func TestRun_DiamondConverges(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2", "s3"}, nil),
		"s2": inlineStep("s2", []string{"s4"}, nil),
		"s3": inlineStep("s3", []string{"s4"}, nil),
		"s4": inlineStep("s4", nil, nil),
	})
	gated := newGatedExecutor()
	e, mgr := testEngine(t, gated, Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, "wf-2", def, "", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	select {
	case <-gated.release:
	default:
		t.Fatal("expected s2 and s3 to both arrive and trip the concurrency gate, but at least one never ran")
	}

	wf, _ := mgr.Get("wf-2")
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("expected COMPLETED, got %s", wf.Status)
	}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		if wf.Steps[id].Status != store.StepCompleted {
			t.Errorf("step %s: expected COMPLETED, got %s", id, wf.Steps[id].Status)
		}
	}
}

func TestRun_UnhandledFailureFailsWorkflow(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, nil),
		"s2": inlineStep("s2", nil, nil),
	})
	behavior := func(step blueprint.StepDefinition, call int) (map[string]any, error) {
		if step.ID == "s1" {
			return nil, errors.New("boom")
		}
		return map[string]any{}, nil
	}
	cfg := Default()
	cfg.DefaultMaxRetries = 0
	e, mgr := testEngine(t, newScriptedExecutor(behavior), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Run(ctx, "wf-3", def, "", nil)
	if err == nil {
		t.Fatalf("expected Run() to return an error")
	}

	wf, _ := mgr.Get("wf-3")
	if wf.Status != store.WorkflowFailed {
		t.Fatalf("expected FAILED, got %s", wf.Status)
	}
	if wf.Steps["s1"].Status != store.StepFailed {
		t.Errorf("s1: expected FAILED, got %s", wf.Steps["s1"].Status)
	}
	if wf.Steps["s2"].Status != store.StepSkipped {
		t.Errorf("s2: expected SKIPPED (unreachable via on_success), got %s", wf.Steps["s2"].Status)
	}
}

func TestRun_OnFailureHandlerAllowsCompletion(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, []string{"recover"}),
		"s2": inlineStep("s2", nil, nil),
		"recover": inlineStep("recover", nil, nil),
	})
	behavior := func(step blueprint.StepDefinition, call int) (map[string]any, error) {
		if step.ID == "s1" {
			return nil, errors.New("boom")
		}
		return map[string]any{}, nil
	}
	cfg := Default()
	cfg.DefaultMaxRetries = 0
	e, mgr := testEngine(t, newScriptedExecutor(behavior), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, "wf-4", def, "", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wf, _ := mgr.Get("wf-4")
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("expected COMPLETED (failure handled), got %s", wf.Status)
	}
	if wf.Steps["recover"].Status != store.StepCompleted {
		t.Errorf("recover: expected COMPLETED, got %s", wf.Steps["recover"].Status)
	}
	if wf.Steps["s2"].Status != store.StepSkipped {
		t.Errorf("s2: expected SKIPPED, got %s", wf.Steps["s2"].Status)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": {ID: "s1", Type: blueprint.StepTypeInline, MaxRetries: 2},
	})
	behavior := func(step blueprint.StepDefinition, call int) (map[string]any, error) {
		if call < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"attempt": call}, nil
	}
	cfg := Default()
	cfg.StepRetryDelay = time.Millisecond
	e, mgr := testEngine(t, newScriptedExecutor(behavior), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, "wf-5", def, "", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wf, _ := mgr.Get("wf-5")
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("expected COMPLETED, got %s", wf.Status)
	}
	if wf.Steps["s1"].RetryCount != 2 {
		t.Errorf("expected RetryCount 2, got %d", wf.Steps["s1"].RetryCount)
	}
}

func TestRun_InputReferenceResolvesPriorStepOutput(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, nil),
		"s2": {ID: "s2", Type: blueprint.StepTypeInline, Inputs: map[string]any{"from_s1": "${steps.s1.value}"}},
	})

	var capturedInput any
	behavior := func(step blueprint.StepDefinition, call int) (map[string]any, error) {
		if step.ID == "s1" {
			return map[string]any{"value": "hello"}, nil
		}
		return map[string]any{}, nil
	}
	scripted := newScriptedExecutor(behavior)
	capture := &capturingExecutor{inner: scripted, onExecute: func(step blueprint.StepDefinition, inputs map[string]any) {
		if step.ID == "s2" {
			capturedInput = inputs["from_s1"]
		}
	}}
	e, mgr := testEngine(t, capture, Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, "wf-6", def, "", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wf, _ := mgr.Get("wf-6")
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("expected COMPLETED, got %s", wf.Status)
	}
	if capturedInput != "hello" {
		t.Errorf("expected resolved input %q, got %v", "hello", capturedInput)
	}
}

type capturingExecutor struct {
	inner     executor.StepExecutor
	onExecute func(step blueprint.StepDefinition, inputs map[string]any)
}

func (c *capturingExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	c.onExecute(step, inputs)
	return c.inner.Execute(ctx, deploymentID, step, inputs)
}

func (c *capturingExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return c.inner.Cancel(ctx, step)
}

func TestRun_DeadlineFailsWithTimeoutReason(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", nil, nil),
	})
	e, mgr := testEngine(t, &blockingExecutor{}, Default())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx, "wf-8", def, "", nil); err == nil {
		t.Fatal("expected Run() to return an error on deadline")
	}

	wf, err := mgr.Get("wf-8")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if wf.Status != store.WorkflowFailed {
		t.Fatalf("expected FAILED, got %s", wf.Status)
	}
	if wf.ErrorMessage != "timeout" {
		t.Errorf("expected error message %q, got %q", "timeout", wf.ErrorMessage)
	}
}

func TestRun_CancelStopsRunningAndSkipsPending(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, nil),
		"s2": inlineStep("s2", nil, nil),
	})
	started := make(chan string, 1)
	e, mgr := testEngine(t, &blockingExecutor{started: started}, Default())

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, "wf-7", def, "", nil) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for step to start")
	}
	e.Cancel("wf-7")

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run() to return an error on cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run() to return after Cancel")
	}

	wf, _ := mgr.Get("wf-7")
	if wf.Status != store.WorkflowCancelled {
		t.Fatalf("expected CANCELLED, got %s", wf.Status)
	}
	if wf.Steps["s1"].Status != store.StepFailed {
		t.Errorf("s1: expected FAILED (cancelled mid-execution), got %s", wf.Steps["s1"].Status)
	}
	if wf.Steps["s2"].Status != store.StepSkipped {
		t.Errorf("s2: expected SKIPPED, got %s", wf.Steps["s2"].Status)
	}
}

func TestPlan_SkipPropagatesAcrossGenerations(t *testing.T) {
	def := mustDefinition(t, map[string]blueprint.StepDefinition{
		"s1": inlineStep("s1", []string{"s2"}, nil),
		"s2": inlineStep("s2", []string{"s3"}, nil),
		"s3": inlineStep("s3", nil, nil),
	})
	preds := buildPredecessors(def)

	steps := map[string]store.StepState{
		"s1": {ID: "s1", Status: store.StepFailed},
		"s2": {ID: "s2", Status: store.StepPending},
		"s3": {ID: "s3", Status: store.StepPending},
	}
	ready, skip := plan(preds, steps)
	if len(ready) != 0 || len(skip) != 1 || skip[0] != "s2" {
		t.Fatalf("first pass: expected skip=[s2], got ready=%v skip=%v", ready, skip)
	}

	steps["s2"] = store.StepState{ID: "s2", Status: store.StepSkipped}
	ready, skip = plan(preds, steps)
	if len(ready) != 0 || len(skip) != 1 || skip[0] != "s3" {
		t.Fatalf("second pass: expected skip=[s3], got ready=%v skip=%v", ready, skip)
	}
}
