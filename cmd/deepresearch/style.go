package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/deepresearch/internal/orchestrator"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	workingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// styleProgress renders a progress line colored by its status.
func styleProgress(event orchestrator.ProgressEvent) string {
	line := orchestrator.FormatProgress(event)
	switch event.Status {
	case orchestrator.ProgressWorking:
		return workingStyle.Render(line)
	case orchestrator.ProgressComplete:
		return completeStyle.Render(line)
	case orchestrator.ProgressFailed:
		return failedStyle.Render(line)
	default:
		return mutedStyle.Render(line)
	}
}
