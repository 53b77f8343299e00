package tui

import (
	"time"

	"collectordl/internal/downloader"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI represents the terminal user interface. It implements
// downloader.Observer.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a new TUI instance
func NewTUI(title string, total int, cooldown time.Duration, cancel func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(title, total, cooldown, cancel)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	program := tea.NewProgram(&model, opts...)

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the program until Stop is called or the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// OnEvent implements downloader.Observer
func (t *TUI) OnEvent(e downloader.Event) {
	t.Send(EventMsg{Event: e})
}
