package render

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("63")  // Purple
	subtle  = lipgloss.Color("245") // Gray

	high   = lipgloss.Color("42")  // Green
	medium = lipgloss.Color("220") // Yellow
	low    = lipgloss.Color("196") // Red
)

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(primary)

var sectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(primary).
	MarginTop(1)

var labelStyle = lipgloss.NewStyle().
	Foreground(subtle).
	Width(22)

// warningStyle boxes the low-confidence notice
var warningStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(medium).
	Foreground(medium).
	Padding(0, 1).
	MarginTop(1)
