// Copyright 2025 Tom Barlow
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

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/ironflow/pkg/flow"
)

// CLI style colors using lipgloss.
var (
	// StatusOK styles success indicators.
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators.
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators.
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles informational text.
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary text.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text.
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers.
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Symbols for status indicators.
const (
	SymbolOK      = "✓"
	SymbolWarn    = "⚠"
	SymbolError   = "✗"
	SymbolInfo    = "•"
	SymbolSkipped = "-"
)

// RenderOK renders a success message with a green checkmark.
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning message.
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders an error message with a red cross.
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderLabel renders a dim label for key: value pairs.
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RunStatusIcon returns the colored icon for a run status.
func RunStatusIcon(status flow.RunStatus) string {
	switch status {
	case flow.RunSuccess:
		return StatusOK.Render(SymbolOK)
	case flow.RunFailed:
		return StatusError.Render(SymbolError)
	case flow.RunStalled:
		return StatusWarn.Render(SymbolWarn)
	case flow.RunRunning:
		return StatusInfo.Render(SymbolInfo)
	default:
		return Muted.Render(SymbolInfo)
	}
}

// TaskStatusIcon returns the colored icon for a task status.
func TaskStatusIcon(status flow.TaskStatus) string {
	switch status {
	case flow.TaskSuccess:
		return StatusOK.Render(SymbolOK)
	case flow.TaskFailed:
		return StatusError.Render(SymbolError)
	case flow.TaskSkipped:
		return Muted.Render(SymbolSkipped)
	case flow.TaskRunning:
		return StatusInfo.Render(SymbolInfo)
	default:
		return Muted.Render(SymbolInfo)
	}
}
