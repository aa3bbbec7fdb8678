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

	"gopkg.in/yaml.v3"
)

// yamlStep is the on-disk shape of a step, close to StepDefinition but
// with a list-of-steps layout (steps need an explicit id field in YAML;
// Definition.Steps is keyed by id internally for O(1) lookup).
type yamlStep struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Target     string         `yaml:"target,omitempty"`
	Operation  string         `yaml:"operation,omitempty"`
	Inputs     map[string]any `yaml:"inputs,omitempty"`
	OnSuccess  []string       `yaml:"on_success,omitempty"`
	OnFailure  []string       `yaml:"on_failure,omitempty"`
	MaxRetries int            `yaml:"max_retries,omitempty"`
}

// yamlDefinition is the on-disk shape of a blueprint.
type yamlDefinition struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description,omitempty"`
	Inputs        map[string]any `yaml:"inputs,omitempty"`
	Steps         []yamlStep     `yaml:"steps"`
	Preconditions []string       `yaml:"preconditions,omitempty"`
	Triggers      []string       `yaml:"triggers,omitempty"`
}

// ParseYAML parses a blueprint definition from YAML bytes and validates
// the resulting dependency graph via New, the same validation a
// programmatically constructed Definition goes through.
func ParseYAML(data []byte) (*Definition, error) {
	var y yamlDefinition
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("blueprint: parsing yaml: %w", err)
	}

	steps := make(map[string]StepDefinition, len(y.Steps))
	for _, s := range y.Steps {
		steps[s.ID] = StepDefinition{
			ID:         s.ID,
			Type:       StepType(s.Type),
			Target:     s.Target,
			Operation:  s.Operation,
			Inputs:     s.Inputs,
			OnSuccess:  s.OnSuccess,
			OnFailure:  s.OnFailure,
			MaxRetries: s.MaxRetries,
		}
	}

	return New(y.ID, y.Name, y.Description, steps, y.Inputs, y.Preconditions, y.Triggers)
}
