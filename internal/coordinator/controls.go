package coordinator

import (
	"context"

	"github.com/desertthunder/jamroom/internal/models"
)

// SelectTrack plays track for the room. The local participant becomes SOURCE immediately; the
// song_play goes out once the device confirms and playback has stabilized.
func (c *Coordinator) SelectTrack(track models.TrackRef) {
	c.post(func() { c.selectTrack(track) })
}

func (c *Coordinator) selectTrack(track models.TrackRef) {
	c.role = models.RoleSource
	c.resetRestore()
	c.clearPending()

	switch v := c.requestPlay(playRequest{track: track, origin: OriginUser}); v {
	case Admitted:
		view := c.view()
		view.Track = &track
		view.Paused = false
		view.PositionMs = 0
		view.DurationMs = track.DurationMs
		c.presenter.Present(view)
	case RejectedDuplicate:
	case RejectedPenalty:
		c.presenter.Status("rate limited by Spotify, try again shortly")
	default:
		c.presenter.Status("slow down: " + v.String())
	}
}

// TogglePlay pauses or resumes the current track.
func (c *Coordinator) TogglePlay() {
	c.post(func() {
		if c.state.Track == nil {
			c.presenter.Status("nothing is playing")
			return
		}
		if c.state.Paused {
			c.command("resume", c.player.Resume, func() {
				c.markPaused(false, c.state.PositionMs)
			})
			return
		}
		c.command("pause", c.player.Pause, func() {
			c.markPaused(true, c.state.EstimatedPosition(c.clock.Now()))
		})
	})
}

// Seek moves the playhead to positionMs, clamped to the track.
func (c *Coordinator) Seek(positionMs int) {
	c.post(func() { c.seek(positionMs) })
}

// SeekBy moves the playhead relative to its estimated position.
func (c *Coordinator) SeekBy(deltaMs int) {
	c.post(func() { c.seek(c.state.EstimatedPosition(c.clock.Now()) + deltaMs) })
}

func (c *Coordinator) seek(pos int) {
	if c.state.Track == nil {
		c.presenter.Status("nothing is playing")
		return
	}
	pos = max(pos, 0)
	if d := c.state.Track.DurationMs; d > 0 {
		pos = min(pos, d)
	}
	c.command("seek", c.seekFn(pos), func() { c.markPosition(pos) })
}

func (c *Coordinator) seekFn(pos int) func(context.Context) error {
	return func(ctx context.Context) error { return c.player.Seek(ctx, pos) }
}

// Next skips forward on the device. The device notification that follows drives any broadcast.
func (c *Coordinator) Next() {
	c.post(func() { c.command("next", c.player.Next, nil) })
}

// Previous skips back on the device.
func (c *Coordinator) Previous() {
	c.post(func() { c.command("previous", c.player.Previous, nil) })
}

// SetVolume sets the device volume, clamped to 0..100.
func (c *Coordinator) SetVolume(percent int) {
	percent = min(max(percent, 0), 100)
	c.post(func() {
		c.command("volume", func(ctx context.Context) error { return c.player.SetVolume(ctx, percent) }, func() {
			c.volume = percent
			c.present()
		})
	})
}

// ChangeVolume adjusts the volume by delta.
func (c *Coordinator) ChangeVolume(delta int) {
	c.post(func() {
		percent := min(max(c.volume+delta, 0), 100)
		c.command("volume", func(ctx context.Context) error { return c.player.SetVolume(ctx, percent) }, func() {
			c.volume = percent
			c.present()
		})
	})
}

func (c *Coordinator) markPaused(paused bool, pos int) {
	c.state.Paused = paused
	c.state.PositionMs = pos
	c.state.LastUpdated = c.clock.Now()
	if paused {
		c.stopProgress()
	} else if c.engaged {
		c.startProgress()
	}
	c.present()
}

func (c *Coordinator) markPosition(pos int) {
	c.state.PositionMs = pos
	c.state.LastUpdated = c.clock.Now()
	c.present()
}
