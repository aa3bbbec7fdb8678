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

// Package cliui holds the engine CLI's lipgloss color palette and the
// helpers that render workflow/step status labels with it.
package cliui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/cloudweave/engine/pkg/store"
)

var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	StatusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	Muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	Bold        = lipgloss.NewStyle().Bold(true)
	Header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// RenderWorkflowStatus colors a workflow status for terminal output:
// green for COMPLETED, red for FAILED/CANCELLED, orange for anything
// still in flight.
func RenderWorkflowStatus(status store.WorkflowStatus) string {
	switch status {
	case store.WorkflowCompleted:
		return StatusOK.Render(SymbolOK + " " + string(status))
	case store.WorkflowFailed, store.WorkflowCancelled:
		return StatusError.Render(SymbolError + " " + string(status))
	default:
		return StatusWarn.Render(SymbolWarn + " " + string(status))
	}
}

// RenderLabel renders a dim key label for key: value output lines.
func RenderLabel(label string) string {
	return Muted.Render(label)
}
