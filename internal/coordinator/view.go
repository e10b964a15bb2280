package coordinator

import "github.com/desertthunder/jamroom/internal/models"

// View is what the presentation layer renders.
type View struct {
	Session    models.Session
	Role       models.Role
	Track      *models.TrackRef
	Paused     bool
	PositionMs int
	DurationMs int
	Listeners  int
	Volume     int
}

// Idle reports whether nothing is loaded.
func (v View) Idle() bool { return v.Track == nil }

// Presenter receives observable state. Calls come from the event loop and must not block for long.
type Presenter interface {
	Present(View)
	Status(msg string)
}

func (c *Coordinator) view() View {
	v := View{
		Session:    c.session,
		Role:       c.role,
		Paused:     c.state.Paused,
		PositionMs: c.state.EstimatedPosition(c.clock.Now()),
		Listeners:  c.listeners,
		Volume:     c.volume,
	}
	if c.state.Track != nil {
		t := *c.state.Track
		v.Track = &t
		v.DurationMs = t.DurationMs
	}
	return v
}

func (c *Coordinator) present() {
	c.presenter.Present(c.view())
}
