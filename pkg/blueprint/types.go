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

// Package blueprint defines the immutable workflow definition model a
// blueprint parser produces and the engine consumes: the dependency
// graph of steps that, once scheduled, drives provider operations.
package blueprint

// StepType discriminates the kind of operation a step performs.
type StepType string

const (
	StepTypeNodeOperation         StepType = "node_operation"
	StepTypeRelationshipOperation StepType = "relationship_operation"
	StepTypeCallOperation         StepType = "call_operation"
	StepTypeInline                StepType = "inline"
)

// StepDefinition is one node in a workflow's dependency graph.
// StepDefinition values are shared-immutable: once a Definition is
// constructed and validated, its steps are never mutated in place.
type StepDefinition struct {
	// ID uniquely identifies this step within its workflow.
	ID string

	// Type selects the executor that runs this step.
	Type StepType

	// Target is the node or relationship identifier the operation acts
	// on. Empty for StepTypeInline.
	Target string

	// Operation is the symbolic operation name dispatched to the
	// provider. Empty for StepTypeInline.
	Operation string

	// Inputs maps input names to literal values or input references
	// (e.g. "${steps.other_step.output_key}" or "${inputs.region}").
	Inputs map[string]any

	// OnSuccess lists the step-ids that become eligible once this step
	// reaches COMPLETED.
	OnSuccess []string

	// OnFailure lists the step-ids that become eligible once this step
	// reaches FAILED.
	OnFailure []string

	// MaxRetries bounds how many times this step is retried after a
	// failure before it is marked FAILED for good. Zero means use the
	// engine default.
	MaxRetries int
}

// Definition is an immutable workflow blueprint: a named, validated
// dependency graph of steps plus the declared input contract.
type Definition struct {
	ID          string
	Name        string
	Description string

	// Inputs maps an input name to its declared type/default,
	// surfaced to the engine opaquely (the engine does not interpret
	// the value beyond passing it through to step input resolution).
	Inputs map[string]any

	// Steps maps step-id to its definition.
	Steps map[string]StepDefinition

	// Preconditions and Triggers are opaque string tags surfaced to
	// the provider; the engine does not interpret them.
	Preconditions []string
	Triggers      []string
}
