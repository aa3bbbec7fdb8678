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

package blueprint

import (
	"fmt"

	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

// New constructs a Definition and validates it: every id referenced by
// a step's OnSuccess/OnFailure must exist in Steps, and the graph those
// edges induce must be acyclic. Returns a *ValidationError describing
// the first problem found otherwise.
func New(id, name, description string, steps map[string]StepDefinition, inputs map[string]any, preconditions, triggers []string) (*Definition, error) {
	if id == "" {
		return nil, &engineerrors.ValidationError{Field: "id", Message: "workflow id must not be empty"}
	}
	if len(steps) == 0 {
		return nil, &engineerrors.ValidationError{Field: "steps", Message: "workflow must contain at least one step"}
	}

	for stepID, step := range steps {
		if step.Type != StepTypeInline && step.Target == "" {
			return nil, &engineerrors.ValidationError{
				Field:   "target",
				Message: fmt.Sprintf("step %q of type %q must specify a target", stepID, step.Type),
			}
		}
	}

	def := &Definition{
		ID:            id,
		Name:          name,
		Description:   description,
		Inputs:        inputs,
		Steps:         steps,
		Preconditions: preconditions,
		Triggers:      triggers,
	}

	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks a Definition's structural invariants: every
// successor id referenced by OnSuccess/OnFailure exists in Steps, and
// the graph those edges induce is acyclic.
func Validate(def *Definition) error {
	for stepID, step := range def.Steps {
		for _, successor := range step.OnSuccess {
			if _, ok := def.Steps[successor]; !ok {
				return &engineerrors.ValidationError{
					Field:      "on_success",
					Message:    fmt.Sprintf("step %q references unknown successor %q", stepID, successor),
					Suggestion: "every id in on_success/on_failure must be a key in steps",
				}
			}
		}
		for _, successor := range step.OnFailure {
			if _, ok := def.Steps[successor]; !ok {
				return &engineerrors.ValidationError{
					Field:      "on_failure",
					Message:    fmt.Sprintf("step %q references unknown successor %q", stepID, successor),
					Suggestion: "every id in on_success/on_failure must be a key in steps",
				}
			}
		}
	}

	return checkAcyclic(def.Steps)
}

// checkAcyclic runs a single Kahn-style topological pass over the
// graph induced by OnSuccess/OnFailure edges: repeatedly remove nodes
// with satisfied in-degree; if any node remains once no further
// progress can be made, the graph contains a cycle.
func checkAcyclic(steps map[string]StepDefinition) error {
	inDegree := make(map[string]int, len(steps))
	successors := make(map[string][]string, len(steps))

	for id := range steps {
		inDegree[id] = 0
	}
	for id, step := range steps {
		for _, s := range step.OnSuccess {
			successors[id] = append(successors[id], s)
			inDegree[s]++
		}
		for _, s := range step.OnFailure {
			successors[id] = append(successors[id], s)
			inDegree[s]++
		}
	}

	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, s := range successors[id] {
			inDegree[s]--
			if inDegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if visited != len(steps) {
		return &engineerrors.ValidationError{
			Field:      "steps",
			Message:    "workflow graph contains a cycle",
			Suggestion: "every step must be reachable via a finite chain of on_success/on_failure edges terminating in a step with no outgoing edges",
		}
	}
	return nil
}
