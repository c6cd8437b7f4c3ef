package ui

import (
	"io"

	"github.com/charmbracelet/log"
	tea "github.com/charmbracelet/bubbletea"
)

// Program wraps a [tea.Program] running a live [Model], exposing Send so
// pipeline/downloader callbacks on other goroutines can feed it events.
type Program struct {
	tea *tea.Program
}

// NewProgram starts a live display for a migration of numWorkers
// concurrent playlist workers. Call Run to block until the user quits or
// Send(NewQuitMsg()) is called.
func NewProgram(numWorkers int) *Program {
	m := New(numWorkers)
	return &Program{tea: tea.NewProgram(m)}
}

// Send delivers an event to the running program. Safe to call from any
// goroutine.
func (p *Program) Send(msg tea.Msg) { p.tea.Send(msg) }

// Run blocks until the program exits.
func (p *Program) Run() error {
	_, err := p.tea.Run()
	return err
}

// DetachLoggers silences every stream-writing handler on the given
// loggers for the duration of a live display, returning a restore func
// that puts each one back on restoreTo. Bubbletea owns the terminal while
// the program runs; anything else writing to it corrupts the frame.
func DetachLoggers(restoreTo io.Writer, loggers ...*log.Logger) (restore func()) {
	for _, l := range loggers {
		l.SetOutput(io.Discard)
	}
	return func() {
		for _, l := range loggers {
			l.SetOutput(restoreTo)
		}
	}
}
