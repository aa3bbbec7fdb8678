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

	"github.com/spf13/cobra"

	"github.com/cloudweave/engine/internal/apiclient"
	"github.com/cloudweave/engine/internal/cliui"
	"github.com/cloudweave/engine/pkg/store"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a workflow's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.New(daemonAddr)
			wf, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", cliui.RenderLabel("id:"), wf.ID)
			fmt.Printf("%s %s\n", cliui.RenderLabel("name:"), wf.Name)
			fmt.Printf("%s %s\n", cliui.RenderLabel("status:"), cliui.RenderWorkflowStatus(wf.Status))
			if wf.ErrorMessage != "" {
				fmt.Printf("%s %s\n", cliui.RenderLabel("error:"), wf.ErrorMessage)
			}
			for stepID, step := range wf.Steps {
				fmt.Printf("  %-20s %s\n", stepID, cliui.RenderWorkflowStatus(store.WorkflowStatus(step.Status)))
			}
			return nil
		},
	}
}
