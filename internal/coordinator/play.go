package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/shared"
)

const historyTimeout = 5 * time.Second

// requestPlay asks the device to play req.track once the policy admits it.
//
// Sync requests refused only because a command is in flight or the cooldown is running are parked in the
// pending slot, newest first, and retried when the guard clears.
func (c *Coordinator) requestPlay(req playRequest) Verdict {
	now := c.clock.Now()
	v := c.policy.Admit(now, c.window, c.inFlight, req.track.ID, req.origin)
	if !v.Admitted() {
		c.logger.Debug("play rejected", "track", req.track.ID, "origin", req.origin, "reason", v)
		if req.origin == OriginSync && v.Deferrable() {
			c.deferSync(req, v, now)
		}
		return v
	}

	if req.origin != OriginRestore {
		c.clearPending()
	}
	c.window = c.policy.Record(now, c.window, req.track.ID)
	c.logger.Info("playing", "track", req.track.String(), "position", req.positionMs, "origin", req.origin)

	track, pos := req.track, req.positionMs
	c.call(func(ctx context.Context) error {
		return c.player.LoadAndPlay(ctx, track, pos)
	}, func(err error) {
		c.playDone(req, err)
	})
	return v
}

func (c *Coordinator) playDone(req playRequest, err error) {
	c.inFlight = false
	if err != nil {
		c.playFailed(req, err)
		c.drainPending()
		return
	}

	now := c.clock.Now()
	track := c.describe(req.track)
	remembered := track
	c.state = models.PlaybackState{Track: &track, PositionMs: req.positionMs, LastUpdated: now}
	c.remembered = &remembered

	switch req.origin {
	case OriginRestore:
		// Only a device notification with a track ends the episode.
		attempt := c.restore.Attempts
		c.arm(&c.restoreTimer, c.policy.RestoreDelay, func() { c.verifyRestore(attempt) })
	default:
		c.engaged = true
		c.startProgress()
	}

	if c.role == models.RoleSource && req.origin == OriginUser {
		c.scheduleBroadcast(relay.EventSongPlay)
	}

	c.record(track, req.origin)
	c.present()

	if req.pauseAfter {
		c.command("pause", c.player.Pause, func() {
			c.state.PositionMs = c.state.EstimatedPosition(c.clock.Now())
			c.state.LastUpdated = c.clock.Now()
			c.state.Paused = true
			c.stopProgress()
			c.present()
		})
		return
	}
	c.drainPending()
}

func (c *Coordinator) playFailed(req playRequest, err error) {
	c.logger.Warn("play failed", "track", req.track.ID, "origin", req.origin, "error", err)
	if !errors.Is(err, shared.ErrRateLimited) {
		// Let the user retry the same track straight away.
		c.window.LastTrackID = ""
	}
	c.fail("play", err)

	if req.origin == OriginRestore {
		c.restoreOrGiveUp()
	}
}

// fail maps a device error onto the window and the status line.
func (c *Coordinator) fail(op string, err error) {
	switch {
	case errors.Is(err, shared.ErrRateLimited):
		c.window = c.policy.Penalize(c.clock.Now(), c.window)
		c.presenter.Status(fmt.Sprintf("rate limited by Spotify, pausing commands for %s", c.policy.RateLimitPenalty))
	case errors.Is(err, shared.ErrDeviceUnavailable):
		c.presenter.Status("no active device: start Spotify on a device and try again")
	case errors.Is(err, shared.ErrTokenExpired):
		c.presenter.Status("Spotify session expired: run jamroom auth")
	default:
		c.presenter.Status(fmt.Sprintf("%s failed: %v", op, err))
	}
}

func (c *Coordinator) deferSync(req playRequest, v Verdict, now time.Time) {
	c.pending = &req
	if v == RejectedCooldown {
		c.arm(&c.pendingTimer, c.policy.CooldownRemaining(now, c.window, req.origin), c.drainPending)
	}
}

func (c *Coordinator) clearPending() {
	c.pending = nil
	c.pendingTimer.stop()
}

// drainPending retries the parked sync request once nothing is in flight.
func (c *Coordinator) drainPending() {
	if c.pending == nil || c.inFlight {
		return
	}
	req := *c.pending
	c.clearPending()
	c.requestPlay(req)
}

// command issues a non-play device command behind the same in-flight guard as plays.
func (c *Coordinator) command(op string, fn func(context.Context) error, onSuccess func()) bool {
	if c.inFlight {
		c.logger.Debug("command skipped, another is in flight", "op", op)
		return false
	}
	if c.policy.Penalized(c.clock.Now(), c.window) {
		c.presenter.Status("rate limited by Spotify, try again shortly")
		return false
	}

	c.call(fn, func(err error) {
		c.inFlight = false
		if err != nil {
			c.logger.Warn("command failed", "op", op, "error", err)
			c.fail(op, err)
		} else if onSuccess != nil {
			onSuccess()
		}
		c.drainPending()
	})
	return true
}

func (c *Coordinator) record(track models.TrackRef, origin Origin) {
	if c.history == nil {
		return
	}
	room := c.session.Room
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if _, err := c.history.Record(ctx, room, track, origin.String()); err != nil {
			c.logger.Warn("failed to record play", "track", track.ID, "error", err)
		}
	}()
}

// enrich looks up metadata for a ref that arrived without a title.
func (c *Coordinator) enrich(track models.TrackRef) {
	if c.catalog == nil || track.Described() {
		return
	}
	base := context.WithoutCancel(c.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(base, commandTimeout)
		ref, err := c.catalog.TrackRef(ctx, track.ID)
		cancel()
		if err != nil || ref == nil {
			c.logger.Debug("track lookup failed", "track", track.ID, "error", err)
			return
		}
		c.post(func() { c.applyMetadata(*ref) })
	}()
}

func (c *Coordinator) applyMetadata(ref models.TrackRef) {
	c.looked = &ref
	for _, t := range []*models.TrackRef{c.state.Track, c.remembered} {
		if t == nil || t.ID != ref.ID {
			continue
		}
		t.Title, t.Artist, t.Album, t.Artwork = ref.Title, ref.Artist, ref.Album, ref.Artwork
		if t.DurationMs == 0 {
			t.DurationMs = ref.DurationMs
		}
	}
	c.present()
}

// describe fills a bare ref from the last lookup when the lookup finished before the play did.
func (c *Coordinator) describe(track models.TrackRef) models.TrackRef {
	if track.Described() || c.looked == nil || c.looked.ID != track.ID {
		return track
	}
	ref := *c.looked
	if track.DurationMs > 0 {
		ref.DurationMs = track.DurationMs
	}
	return ref
}
