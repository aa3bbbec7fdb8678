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

package executor

import (
	"context"

	"github.com/cloudweave/engine/pkg/blueprint"
)

// SubWorkflowRunner submits the workflow definition identified by
// definitionID for execution and blocks until it reaches a terminal
// status, returning its outputs. The scheduler/engine supplies the
// concrete implementation; executor itself has no dependency on
// either, avoiding an import cycle.
type SubWorkflowRunner func(ctx context.Context, definitionID string, inputs map[string]any) (map[string]any, error)

// callOperationExecutor invokes a nested workflow identified by
// step.Target and waits for it to complete, surfacing its outputs as
// this step's outputs.
type callOperationExecutor struct {
	runner SubWorkflowRunner
}

func (e *callOperationExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	return e.runner(ctx, step.Target, inputs)
}

func (e *callOperationExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}
