package theme

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

// Color palette, one accent per pillar
var (
	Correct        = lipgloss.Color("#22C55E") // Green
	Missed         = lipgloss.Color("#F97316") // Orange
	Misinterpreted = lipgloss.Color("#F43F5E") // Rose
	Clarity        = lipgloss.Color("#14B8A6") // Teal
	Recommend      = lipgloss.Color("#8B5CF6") // Vivid Purple
	Text           = lipgloss.Color("#F8FAFC") // White
	TextDim        = lipgloss.Color("#94A3B8") // Slate
	Border         = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Text)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Banner = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 2)
)

// Heading returns the bold pillar heading style in the given accent.
func Heading(accent color.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Underline(true).Foreground(accent)
}

// Score picks a color for a 0..100 score.
func Score(v float64) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch {
	case v >= 80:
		return s.Foreground(Correct)
	case v >= 50:
		return s.Foreground(Missed)
	default:
		return s.Foreground(Misinterpreted)
	}
}
