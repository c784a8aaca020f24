// Package theme holds the terminal styles the CLI prints quizzes and
// reports with.
package theme

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Accent  = lipgloss.Color("#F97316") // Orange
	Success = lipgloss.Color("#22C55E") // Green
	Error   = lipgloss.Color("#F43F5E") // Rose
	TextDim = lipgloss.Color("#94A3B8") // Slate
	Border  = lipgloss.Color("#334155") // Slate
)

var (
	// Heading introduces a question or a report table.
	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	// Tag marks a question type next to a heading.
	Tag = lipgloss.NewStyle().
		Foreground(Accent)

	Answer = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Warning = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	rule = lipgloss.NewStyle().
		Foreground(Border)
)

// Rule renders a horizontal separator n cells wide.
func Rule(n int) string {
	return rule.Render(strings.Repeat("─", n))
}
