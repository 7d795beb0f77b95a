// Package watch is the live terminal dashboard behind "intake watch".
package watch

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the dashboard renders with.
type Theme struct {
	OK   lipgloss.Style
	Warn lipgloss.Style
	Fail lipgloss.Style
	Idle lipgloss.Style

	Panel  lipgloss.Style
	Title  lipgloss.Style
	Dim    lipgloss.Style
	Accent lipgloss.Style

	DotOn  lipgloss.Style
	DotOff lipgloss.Style
}

func fg(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }

// NewDefaultTheme uses the 256-colour palette so it renders the same on
// most terminals.
func NewDefaultTheme() Theme {
	return Theme{
		OK:   fg("42"),
		Warn: fg("214"),
		Fail: fg("196"),
		Idle: fg("245"),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Padding(0, 1),
		Dim:    fg("243"),
		Accent: fg("180"),

		DotOn:  fg("42"),
		DotOff: fg("238"),
	}
}
