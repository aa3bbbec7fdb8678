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
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cloudweave/engine/pkg/store"
)

// refPattern matches "${...}" input references. The expression inside
// is evaluated against a context exposing the workflow's declared
// inputs and every step's outputs so far.
var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolver compiles and caches "${...}" expressions and returns each
// expression's raw value rather than forcing a boolean.
type resolver struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newResolver() *resolver {
	return &resolver{cache: make(map[string]*vm.Program)}
}

func (r *resolver) compile(expression string) (*vm.Program, error) {
	r.mu.RLock()
	if prog, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return prog, nil
	}
	r.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[expression] = prog
	r.mu.Unlock()
	return prog, nil
}

func (r *resolver) eval(expression string, evalCtx map[string]any) (any, error) {
	prog, err := r.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("input reference %q: %w", expression, err)
	}
	out, err := expr.Run(prog, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("input reference %q: %w", expression, err)
	}
	return out, nil
}

// stepOutputsView projects a WorkflowState's steps into the shape
// input references address: stepID -> its output map.
func stepOutputsView(steps map[string]store.StepState) map[string]any {
	view := make(map[string]any, len(steps))
	for id, s := range steps {
		if s.Outputs == nil {
			view[id] = map[string]any{}
			continue
		}
		view[id] = s.Outputs
	}
	return view
}

// resolveInputs evaluates every "${...}" reference in step's declared
// inputs against the workflow's inputs and the outputs recorded by its
// steps so far. Values with no reference pass through unchanged.
func (r *resolver) resolveInputs(rawInputs map[string]any, wf *store.WorkflowState) (map[string]any, error) {
	evalCtx := map[string]any{
		"inputs": wf.Inputs,
		"steps":  stepOutputsView(wf.Steps),
	}

	resolved := make(map[string]any, len(rawInputs))
	for name, raw := range rawInputs {
		value, err := r.resolveValue(raw, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("resolving input %q: %w", name, err)
		}
		resolved[name] = value
	}
	return resolved, nil
}

func (r *resolver) resolveValue(raw any, evalCtx map[string]any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	matches := refPattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expression := s[matches[0][0]+2 : matches[0][1]-1]
		return r.eval(expression, evalCtx)
	}

	var evalErr error
	interpolated := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		expression := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		value, err := r.eval(expression, evalCtx)
		if err != nil {
			evalErr = err
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return interpolated, nil
}
