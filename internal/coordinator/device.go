package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
)

// onDevice applies a device notification. A stop while engaged starts restoration; anything with a track
// ends it. A SOURCE turns track, pause and seek changes into broadcasts.
func (c *Coordinator) onDevice(st *models.DeviceState) {
	now := c.clock.Now()

	if st == nil || st.Track == nil {
		if !c.engaged {
			return
		}
		c.logger.Info("playback stopped")
		c.engaged = false
		c.state.PositionMs = c.state.EstimatedPosition(now)
		c.state.LastUpdated = now
		c.state.Paused = true
		c.stopProgress()
		c.restoreOrGiveUp()
		c.present()
		return
	}

	prev := c.state
	track := *st.Track
	if track.DurationMs == 0 {
		track.DurationMs = st.DurationMs
	}
	if track.Same(prev.Track) && !track.Described() && prev.Track.Described() {
		track = *prev.Track
	}

	trackChanged := !track.Same(prev.Track)
	pausedChanged := !trackChanged && prev.Paused != st.Paused
	seeked := !trackChanged && !pausedChanged && c.jumped(prev, st.PositionMs, now)
	// Coming back from a stop is recovery, not a user pause or seek.
	settled := c.engaged && c.restore.Attempts == 0

	c.engaged = true
	c.resetRestore()
	c.volume = st.Volume

	remembered := track
	c.state = models.PlaybackState{Track: &track, Paused: st.Paused, PositionMs: st.PositionMs, LastUpdated: now}
	c.remembered = &remembered

	if st.Paused {
		c.stopProgress()
	} else {
		c.startProgress()
	}

	if c.role == models.RoleSource {
		switch {
		case trackChanged:
			c.scheduleBroadcast(relay.EventSongPlay)
		case settled && (pausedChanged || seeked):
			c.scheduleBroadcast(relay.EventSongUpdate)
		}
	}
	c.present()
}

// jumped reports whether pos is further from where prev should be than the drift tolerance allows.
func (c *Coordinator) jumped(prev models.PlaybackState, pos int, now time.Time) bool {
	d := prev.EstimatedPosition(now) - pos
	if d < 0 {
		d = -d
	}
	return time.Duration(d)*time.Millisecond > c.policy.DriftTolerance
}

// restoreOrGiveUp schedules the next restore attempt, or abandons playback once the bound is reached.
func (c *Coordinator) restoreOrGiveUp() {
	if c.remembered == nil {
		c.giveUp()
		return
	}
	if !c.restore.Next() {
		c.giveUp()
		return
	}

	attempt := c.restore.Attempts
	c.presenter.Status(fmt.Sprintf("playback stopped, restoring (%d/%d)", attempt, c.restore.Bound))
	c.arm(&c.restoreTimer, c.policy.RestoreDelay, func() { c.attemptRestore(attempt) })
}

func (c *Coordinator) attemptRestore(attempt int) {
	if c.restore.Attempts != attempt || c.remembered == nil || c.engaged {
		return
	}
	// A penalty would reject every attempt, so wait it out without spending one.
	if now := c.clock.Now(); c.policy.Penalized(now, c.window) {
		c.arm(&c.restoreTimer, c.window.PenaltyUntil.Sub(now), func() { c.attemptRestore(attempt) })
		return
	}
	if v := c.requestPlay(playRequest{track: *c.remembered, origin: OriginRestore}); !v.Admitted() {
		c.restoreOrGiveUp()
	}
}

// verifyRestore runs after a restore play was accepted. Without an engaged notification since, the
// attempt counts as failed.
func (c *Coordinator) verifyRestore(attempt int) {
	if c.engaged || c.restore.Attempts != attempt {
		return
	}
	c.restoreOrGiveUp()
}

func (c *Coordinator) giveUp() {
	c.logger.Warn("giving up on playback restoration", "attempts", c.restore.Attempts)
	c.restore.Reset()
	c.restoreTimer.stop()
	c.engaged = false
	c.state = models.PlaybackState{}
	c.remembered = nil
	c.stopProgress()
	c.presenter.Status("playback stopped and could not be restored")
	c.present()
}

func (c *Coordinator) resetRestore() {
	c.restore.Reset()
	c.restoreTimer.stop()
}

// startProgress polls the device for the playhead while playing. Polls are reads, not commands.
func (c *Coordinator) startProgress() {
	if c.progress != nil {
		return
	}
	ticker := c.clock.Ticker(c.policy.ProgressInterval)
	stop := make(chan struct{})
	c.progress, c.progressStop = ticker, stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.post(c.pollProgress) {
					return
				}
			}
		}
	}()
}

func (c *Coordinator) stopProgress() {
	if c.progress == nil {
		return
	}
	c.progress.Stop()
	close(c.progressStop)
	c.progress, c.progressStop = nil, nil
}

func (c *Coordinator) pollProgress() {
	if c.polling || !c.engaged || c.state.Paused {
		return
	}
	c.polling = true
	base := context.WithoutCancel(c.ctx)

	go func() {
		ctx, cancel := context.WithTimeout(base, commandTimeout)
		st, err := c.player.State(ctx)
		cancel()
		c.post(func() {
			c.polling = false
			if err != nil {
				c.logger.Debug("progress poll failed", "error", err)
				return
			}
			if st == nil || st.Track == nil || !st.Track.Same(c.state.Track) {
				return
			}
			c.state.PositionMs = st.PositionMs
			c.state.LastUpdated = c.clock.Now()
			c.present()
		})
	}()
}
