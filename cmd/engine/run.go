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

package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloudweave/engine/internal/cliui"
	"github.com/cloudweave/engine/internal/log"
	"github.com/cloudweave/engine/pkg/blueprint"
	"github.com/cloudweave/engine/pkg/cloud/mockprovider"
	"github.com/cloudweave/engine/pkg/engine"
	"github.com/cloudweave/engine/pkg/executor"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
	"github.com/cloudweave/engine/pkg/store/memstore"
)

// newRunCommand drives a blueprint to completion in-process, against a
// memory store and the mock cloud provider — no engined instance
// required. It is the quickest way to try a blueprint locally.
func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a blueprint in-process against the mock provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading blueprint: %w", err)
			}

			def, err := blueprint.ParseYAML(data)
			if err != nil {
				return fmt.Errorf("parsing blueprint: %w", err)
			}

			manager := state.New(memstore.New())
			provider := mockprovider.New(mockprovider.Default())
			registry := executor.NewRegistry(provider, nil)
			eng := engine.New(manager, registry, engine.Default(), log.New(log.FromEnv()))

			workflowID := uuid.New().String()[:8]
			fmt.Printf("%s workflow %s (%s)\n", cliui.RenderLabel("starting"), workflowID, def.Name)

			runErr := eng.Run(cmd.Context(), workflowID, def, "", nil)

			wf, getErr := manager.Get(workflowID)
			if getErr != nil {
				return getErr
			}

			for stepID, step := range wf.Steps {
				fmt.Printf("  step %-20s %s\n", stepID, cliui.RenderWorkflowStatus(store.WorkflowStatus(step.Status)))
			}
			fmt.Printf("%s workflow %s\n", cliui.RenderLabel("result"), cliui.RenderWorkflowStatus(wf.Status))

			return runErr
		},
	}
	return cmd
}
