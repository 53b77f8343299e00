package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// osu! palette
	osuPink     = lipgloss.Color("#FF66AA")
	osuPurple   = lipgloss.Color("#8866EE")
	okGreen     = lipgloss.Color("#88DD55")
	warnYellow  = lipgloss.Color("#FFCC22")
	errorRed    = lipgloss.Color("#FF4455")
	infoBlue    = lipgloss.Color("#66CCFF")
	dimWhite    = lipgloss.Color("#B0B0B0")
	darkBg      = lipgloss.Color("#1C1719")
	brightWhite = lipgloss.Color("#FFFFFF")
)

var headerStyle = lipgloss.NewStyle().
	Foreground(osuPink).
	Bold(true).
	Padding(1, 0, 0, 1)

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(osuPurple).
	Padding(0, 1)

var titleStyle = lipgloss.NewStyle().
	Background(osuPink).
	Foreground(darkBg).
	Bold(true).
	Padding(0, 1)

var statsLabelStyle = lipgloss.NewStyle().
	Foreground(infoBlue).
	Bold(true)

var statsValueStyle = lipgloss.NewStyle().
	Foreground(brightWhite)

var successStyle = lipgloss.NewStyle().
	Foreground(okGreen).
	Bold(true)

var errorStyle = lipgloss.NewStyle().
	Foreground(errorRed).
	Bold(true)

var warningStyle = lipgloss.NewStyle().
	Foreground(warnYellow).
	Bold(true)

var dimStyle = lipgloss.NewStyle().
	Foreground(dimWhite)

var logTimestampStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#666666"))

var helpStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#626262")).
	Padding(0, 0, 0, 1)

// levelColor returns the color used for a log level
func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return errorRed
	case "WARN":
		return warnYellow
	case "SUCCESS":
		return okGreen
	case "INFO":
		return infoBlue
	default:
		return dimWhite
	}
}
