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

// Package executor dispatches a single workflow step to the
// implementation responsible for its StepType: apply an operation on
// a node or relationship through a cloud provider, invoke a nested
// workflow, or produce a constant inline output.
package executor

import (
	"context"
	"fmt"

	"github.com/cloudweave/engine/pkg/blueprint"
	"github.com/cloudweave/engine/pkg/cloud"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

// StepExecutor is the capability every step-type implementation
// exposes. Execute may suspend (it is called from its own goroutine
// by the workflow executor); Cancel is best-effort and must never
// return an error from a well-behaved implementation.
type StepExecutor interface {
	// Execute runs step against the deployment identified by
	// deploymentID and returns the step's output map. The built-in
	// operation executors pass step.Operation to the provider but not
	// step.Target; the call executor uses step.Target as the nested
	// workflow's definition ID.
	Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error)

	// Cancel requests best-effort cancellation of an in-flight
	// execution of step. Implementations that cannot interrupt
	// in-flight work simply return nil.
	Cancel(ctx context.Context, step blueprint.StepDefinition) error
}

// Registry maps a StepType to the StepExecutor responsible for it.
type Registry struct {
	executors map[blueprint.StepType]StepExecutor
}

// NewRegistry builds a Registry with the standard NodeOperation,
// RelationshipOperation, Inline, and (if runner is non-nil)
// CallOperation executors pre-registered against provider.
func NewRegistry(provider cloud.Provider, runner SubWorkflowRunner) *Registry {
	r := &Registry{executors: make(map[blueprint.StepType]StepExecutor)}
	r.Register(blueprint.StepTypeNodeOperation, &nodeOperationExecutor{provider: provider})
	r.Register(blueprint.StepTypeRelationshipOperation, &relationshipOperationExecutor{provider: provider})
	r.Register(blueprint.StepTypeInline, &inlineExecutor{})
	if runner != nil {
		r.Register(blueprint.StepTypeCallOperation, &callOperationExecutor{runner: runner})
	}
	return r
}

// Register installs (or replaces) the executor responsible for
// stepType.
func (r *Registry) Register(stepType blueprint.StepType, executor StepExecutor) {
	r.executors[stepType] = executor
}

// Get returns the executor registered for stepType.
func (r *Registry) Get(stepType blueprint.StepType) (StepExecutor, error) {
	executor, ok := r.executors[stepType]
	if !ok {
		return nil, &engineerrors.ExecutionError{Message: fmt.Sprintf("no executor registered for step type %q", stepType)}
	}
	return executor, nil
}

// Execute looks up the executor for step.Type and runs it.
func (r *Registry) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	executor, err := r.Get(step.Type)
	if err != nil {
		return nil, err
	}
	outputs, err := executor.Execute(ctx, deploymentID, step, inputs)
	if err != nil {
		return nil, &engineerrors.ExecutionError{StepID: step.ID, Message: err.Error(), Cause: err}
	}
	return outputs, nil
}

// Cancel looks up the executor for step.Type and cancels it.
func (r *Registry) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	executor, err := r.Get(step.Type)
	if err != nil {
		return err
	}
	return executor.Cancel(ctx, step)
}
