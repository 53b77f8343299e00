package tui

import (
	"fmt"
	"strings"

	"collectordl/pkg/ui"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		lipgloss.JoinHorizontal(lipgloss.Top, m.renderStatsPanel(), " ", m.renderActivePanel()),
		m.renderLogsPanel(),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q stop • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the title line with the run status
func (m Model) renderHeader() string {
	st := m.tracker

	var status string
	switch {
	case st.Finished:
		status = successStyle.Render("done")
	case m.cancelling:
		status = warningStyle.Render("cancelling")
	case st.Paused:
		status = warningStyle.Render(fmt.Sprintf("rate limited, resuming in %s", ui.FormatDuration(m.resumeIn())))
	case st.IndexTotal > 0 && st.Indexed < st.IndexTotal:
		status = m.spinner.View() + dimStyle.Render(fmt.Sprintf("indexing %d/%d", st.Indexed, st.IndexTotal))
	default:
		status = m.spinner.View() + dimStyle.Render("downloading")
	}

	return headerStyle.Render("collectordl • "+m.title) + "  " + status
}

// renderProgress renders the overall progress bar
func (m Model) renderProgress() string {
	st := m.tracker
	count := statsValueStyle.Render(fmt.Sprintf(" %d/%d", st.Settled(), st.Total))
	return " " + m.progress.ViewAs(st.Fraction()) + count
}

// renderStatsPanel renders the counters
func (m Model) renderStatsPanel() string {
	st := m.tracker
	width := m.width/2 - 2

	line := func(label, value string) string {
		return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), value)
	}

	eta := "-"
	if d := st.ETA(); d > 0 {
		eta = ui.FormatDuration(d)
	}

	stats := []string{
		titleStyle.Render(" STATS "),
		line("Downloaded:", successStyle.Render(fmt.Sprintf("%d", st.Downloaded))),
		line("Skipped:", statsValueStyle.Render(fmt.Sprintf("%d", st.Skipped))),
		line("Failed:", errorStyle.Render(fmt.Sprintf("%d", st.Failed))),
		line("Retries:", statsValueStyle.Render(fmt.Sprintf("%d", st.Retries))),
		line("Rate limits:", statsValueStyle.Render(fmt.Sprintf("%d", st.RateLimits))),
		line("Written:", statsValueStyle.Render(ui.FormatBytes(st.Bytes))),
		line("Elapsed:", statsValueStyle.Render(ui.FormatDuration(st.GetElapsedTime()))),
		line("ETA:", statsValueStyle.Render(eta)),
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, stats...))
}

// renderActivePanel renders in-flight attempts
func (m Model) renderActivePanel() string {
	width := m.width/2 - 2
	rows := []string{titleStyle.Render(" ACTIVE ")}

	active := m.tracker.ActiveAttempts()
	if len(active) == 0 {
		rows = append(rows, dimStyle.Render("No active downloads"))
	}
	for _, a := range active {
		name := truncate(a.Name, width-16)
		tag := ""
		if a.Alternate {
			tag = warningStyle.Render(" alt")
		}
		rows = append(rows, fmt.Sprintf("%s #%d%s", name, a.Attempt, tag))
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderLogsPanel renders the most recent log messages
func (m Model) renderLogsPanel() string {
	width := m.width - 2

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, truncate(log.Message, width-25)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" LOG "), content),
	)
}

// renderHelp renders the help panel
func (m Model) renderHelp() string {
	help := `  q/Q      - Stop the run (press again to quit)
  ctrl+l   - Clear the log
  ?        - Toggle this help

  ` + warningStyle.Render("alt") + `      - Attempt uses the alternate mirror`

	return panelStyle.Width(m.width - 2).Render(help)
}

// truncate shortens s to n runes with an ellipsis
func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
