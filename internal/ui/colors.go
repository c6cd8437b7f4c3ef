package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Painter defines coloring text with [lipgloss] styles.
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// palette is the live display's default [Painter], used for section
// headers, counters, and activity-log severities.
type palette struct{}

func (palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

var (
	colorOK    = lipgloss.Color("42")  // green: added / completed
	colorWarn  = lipgloss.Color("214") // yellow: skipped / pending
	colorFail  = lipgloss.Color("196") // red: failed / not found
	colorMuted = lipgloss.Color("243")
	colorTitle = lipgloss.Color("63")
)

var defaultPainter Painter = palette{}
