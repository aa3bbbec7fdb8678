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
	"github.com/cloudweave/engine/pkg/cloud"
)

// nodeOperationExecutor runs step.Operation through the provider's
// deployment-level ExecuteOperation with the step's resolved inputs.
// step.Target is not passed to the provider; a node identity reaches
// it only if the step's own inputs carry one.
type nodeOperationExecutor struct {
	provider cloud.Provider
}

func (e *nodeOperationExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	return e.provider.ExecuteOperation(ctx, deploymentID, step.Operation, inputs)
}

func (e *nodeOperationExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}

// relationshipOperationExecutor runs step.Operation through the
// provider's deployment-level ExecuteOperation with the step's
// resolved inputs, exactly as nodeOperationExecutor does. step.Target
// is not passed to the provider; a relationship identity reaches it
// only if the step's own inputs carry one.
type relationshipOperationExecutor struct {
	provider cloud.Provider
}

func (e *relationshipOperationExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	return e.provider.ExecuteOperation(ctx, deploymentID, step.Operation, inputs)
}

func (e *relationshipOperationExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}

// inlineExecutor performs no provider call: it returns step.Inputs
// verbatim as its output, letting a workflow stitch constants or
// previously-resolved values into later steps' inputs without an
// operation round-trip.
type inlineExecutor struct{}

func (e *inlineExecutor) Execute(ctx context.Context, deploymentID string, step blueprint.StepDefinition, inputs map[string]any) (map[string]any, error) {
	outputs := make(map[string]any, len(inputs))
	for k, v := range inputs {
		outputs[k] = v
	}
	return outputs, nil
}

func (e *inlineExecutor) Cancel(ctx context.Context, step blueprint.StepDefinition) error {
	return nil
}
