// Package tui provides Bubble Tea views for the scriptrun CLI.
//
// Views are opt-in (--tui) and render the same report payloads as the
// json, table and yaml formats.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/scriptrun/runtime"
)

// Palette. Each color has a light and a dark terminal variant.
var (
	accent = lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#A78BFA"}
	green  = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	amber  = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	red    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	muted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	text   = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	faint  = lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}
	cursor = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(muted).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(text)
	HelpStyle  = lipgloss.NewStyle().Foreground(muted).MarginTop(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	WarningStyle = lipgloss.NewStyle().Foreground(amber)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)

	// BoxStyle frames detail panes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(1, 2)

	// SelectedStyle marks the cursor row in lists.
	SelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(cursor)

	// LogStyle indents captured snippet output.
	LogStyle = lipgloss.NewStyle().Foreground(faint).PaddingLeft(2)
)

// OutcomeStyle colors an outcome status: green for success, amber for a
// timeout, red for every other failure.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch runtime.OutcomeStatus(outcome) {
	case runtime.OutcomeSuccess:
		return SuccessStyle
	case runtime.OutcomeTimeout:
		return WarningStyle
	case runtime.OutcomeSnippetError, runtime.OutcomeExecutorCrash, runtime.OutcomeInvalidInput:
		return ErrorStyle
	}
	return ValueStyle
}
