// Package style holds the small set of text styling helpers the CLI prints with.
package style

import (
	"github.com/charmbracelet/lipgloss"
)

// New returns a blank lipgloss.Style to build on.
func New() lipgloss.Style {
	return lipgloss.NewStyle()
}

// Fg returns a render function that paints a string with the given foreground color.
func Fg(c lipgloss.Color) func(string) string {
	style := New().Foreground(c)
	return func(s string) string { return style.Render(s) }
}

var (
	Faint = func(s string) string { return New().Faint(true).Render(s) }
	Bold  = func(s string) string { return New().Bold(true).Render(s) }
)
