package ui

import (
	"sync"

	"github.com/charmbracelet/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamroom/internal/coordinator"
)

var (
	_ coordinator.Presenter = (*ProgramPresenter)(nil)
	_ coordinator.Presenter = (*LogPresenter)(nil)
)

// ProgramPresenter forwards coordinator output into a running bubbletea program.
//
// Anything presented before [ProgramPresenter.Attach] is dropped; the coordinator presents again on every
// change. Send blocks until the program reads, so the program must be running once attached.
type ProgramPresenter struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach starts forwarding to p.
func (pp *ProgramPresenter) Attach(p *tea.Program) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.program = p
}

func (pp *ProgramPresenter) Present(v coordinator.View) { pp.send(viewMsg(v)) }

func (pp *ProgramPresenter) Status(msg string) { pp.send(statusMsg(msg)) }

func (pp *ProgramPresenter) send(msg tea.Msg) {
	pp.mu.Lock()
	p := pp.program
	pp.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// LogPresenter writes changes of track, pause state and role as log lines, for headless sessions.
type LogPresenter struct {
	logger *log.Logger
	last   coordinator.View
	seen   bool
}

// NewLogPresenter creates a presenter writing to logger.
func NewLogPresenter(logger *log.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

func (lp *LogPresenter) Present(v coordinator.View) {
	changed := !lp.seen ||
		v.Role != lp.last.Role ||
		v.Paused != lp.last.Paused ||
		v.Listeners != lp.last.Listeners ||
		trackID(v) != trackID(lp.last)
	lp.last, lp.seen = v, true
	if !changed {
		return
	}

	if v.Idle() {
		lp.logger.Info("nothing playing", "role", v.Role, "listeners", v.Listeners)
		return
	}
	lp.logger.Info("now playing", "track", v.Track.String(), "paused", v.Paused, "role", v.Role, "listeners", v.Listeners)
}

func (lp *LogPresenter) Status(msg string) {
	lp.logger.Info(msg)
}

func trackID(v coordinator.View) string {
	if v.Track == nil {
		return ""
	}
	return v.Track.ID
}
