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

func newListCommand() *cobra.Command {
	var statusFilter, nameFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows known to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.New(daemonAddr)
			workflows, err := client.List(cmd.Context(), store.Filter{
				Status: store.WorkflowStatus(statusFilter),
				Name:   nameFilter,
			})
			if err != nil {
				return err
			}

			if len(workflows) == 0 {
				fmt.Println(cliui.RenderLabel("no workflows found"))
				return nil
			}

			for _, wf := range workflows {
				fmt.Printf("%-10s %-24s %s\n", wf.ID, wf.Name, cliui.RenderWorkflowStatus(wf.Status))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by workflow status")
	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter by workflow name")
	return cmd
}
