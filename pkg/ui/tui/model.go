package tui

import (
	"fmt"
	"time"

	"collectordl/internal/downloader"
	"collectordl/pkg/ui"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the bubbletea model of a download run. All state changes happen
// in Update, which bubbletea calls from a single goroutine.
type Model struct {
	// UI components
	spinner  spinner.Model
	progress progress.Model

	// Run state
	title      string
	tracker    *ui.Tracker
	cooldown   time.Duration
	cancel     func()
	cancelling bool

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model for a run over total targets. cancel is called
// when the user asks to stop; it may be nil.
func NewModel(title string, total int, cooldown time.Duration, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(osuPink)

	p := progress.New(progress.WithGradient(string(osuPurple), string(osuPink)))
	p.Width = 40

	return Model{
		spinner:        s,
		progress:       p,
		title:          title,
		tracker:        ui.NewTracker(total),
		cooldown:       cooldown,
		cancel:         cancel,
		logMessages:    []LogMessage{},
		maxLogMessages: 50,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Tracker returns the run counters
func (m *Model) Tracker() *ui.Tracker {
	return m.tracker
}

// applyEvent folds a run event into the model and logs what happened
func (m *Model) applyEvent(e downloader.Event) {
	m.tracker.Apply(e)

	switch e.Kind {
	case downloader.EventIndexing:
		if e.Processed == e.Total {
			m.AddLogMessage("INFO", fmt.Sprintf("Indexed %d existing entries", e.Total))
		}
	case downloader.EventDownloaded:
		m.AddLogMessage("SUCCESS", fmt.Sprintf("%s (%s)", e.Filename, ui.FormatBytes(e.Bytes)))
	case downloader.EventRetrying:
		m.AddLogMessage("WARN", fmt.Sprintf("Retrying %s: %v", e.Target, e.Err))
	case downloader.EventRateLimited:
		if e.Paused {
			m.AddLogMessage("WARN", fmt.Sprintf("Rate limited on %s, pausing for %s", e.Target, ui.FormatDuration(m.cooldown)))
		}
	case downloader.EventError:
		m.AddLogMessage("ERROR", fmt.Sprintf("Failed %s: %v", e.Target, e.Err))
	case downloader.EventCancelled:
		if r := e.Result; r != nil {
			m.AddLogMessage("WARN", fmt.Sprintf("Cancelled after %d of %d", r.Terminal(), r.Total))
		}
	case downloader.EventEnd:
		if r := e.Result; r != nil {
			m.AddLogMessage("INFO", fmt.Sprintf("Finished: %d downloaded, %d skipped, %d failed", r.Downloaded, r.Skipped, len(r.Failed)))
		}
	}
}

// requestCancel asks the run to stop. It reports whether a cancel was issued.
func (m *Model) requestCancel() bool {
	if m.cancelling || m.tracker.Finished {
		return false
	}
	m.cancelling = true
	if m.cancel != nil {
		m.cancel()
	}
	m.AddLogMessage("WARN", "Cancelling, waiting for in-flight downloads")
	return true
}

// resumeIn returns the time left in the current cooldown
func (m *Model) resumeIn() time.Duration {
	if !m.tracker.Paused {
		return 0
	}
	left := time.Until(m.tracker.PausedAt.Add(m.cooldown))
	if left < 0 {
		return 0
	}
	return left
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
