package coordinator

import (
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
)

func (c *Coordinator) onEvent(evt relay.Event) {
	if evt.Room != "" && evt.Room != c.session.Room {
		c.logger.Debug("dropping event for another room", "type", evt.Type, "event_room", evt.Room)
		return
	}
	if evt.Type != relay.EventRoomMessage && evt.Sender == c.session.Participant {
		return
	}

	if evt.IsSync() {
		c.onSync(evt)
		return
	}

	switch evt.Type {
	case relay.EventSyncRequest:
		c.onSyncRequest()
	case relay.EventRoomMessage:
		if evt.Message == nil {
			return
		}
		if evt.Message.Listeners > 0 {
			c.listeners = evt.Message.Listeners
		}
		c.presenter.Status(evt.Message.Msg)
		c.present()
	case relay.EventJoin:
		c.presenter.Status(fmt.Sprintf("%s joined", evt.Sender))
	case relay.EventLeave:
		c.presenter.Status(fmt.Sprintf("%s left", evt.Sender))
	default:
		c.logger.Debug("ignoring event", "type", evt.Type)
	}
}

// onSync follows a peer's broadcast unless it is our own echo or the source policy holds.
func (c *Coordinator) onSync(evt relay.Event) {
	sync, ok := evt.Sync()
	if !ok {
		c.logger.Warn("sync event without payload", "type", evt.Type, "sender", evt.Sender)
		return
	}

	now := c.clock.Now()
	if c.policy.Protected(now, c.window) {
		c.logger.Debug("ignoring sync inside protection window", "sender", evt.Sender, "track", sync.Track.ID)
		return
	}
	if c.role == models.RoleSource && !c.sourcePolicy.Yields(c.state.Track, sync.Track) {
		c.logger.Debug("source holding", "policy", c.sourcePolicy, "sender", evt.Sender, "track", sync.Track.ID)
		return
	}

	if sync.Track.Same(c.state.Track) {
		if evt.Type == relay.EventSyncPlayback {
			c.reconcile(sync, now)
		}
		return
	}

	c.logger.Info("following peer", "sender", evt.Sender, "track", sync.Track.String())
	c.role = models.RoleListener
	c.resetRestore()
	c.cancelBroadcast()

	optimistic := c.view()
	track := sync.Track
	optimistic.Role = c.role
	optimistic.Track = &track
	optimistic.Paused = sync.HasPaused && sync.Paused
	optimistic.PositionMs = sync.PositionMs
	optimistic.DurationMs = track.DurationMs
	c.presenter.Present(optimistic)

	c.requestPlay(playRequest{
		track:      sync.Track,
		positionMs: sync.PositionMs,
		origin:     OriginSync,
		pauseAfter: sync.HasPaused && sync.Paused,
	})
	c.enrich(sync.Track)
}

// reconcile brings a listener already on the right track in line with the peer's pause state and playhead.
func (c *Coordinator) reconcile(sync relay.SyncState, now time.Time) {
	if sync.HasPaused && sync.Paused != c.state.Paused {
		if sync.Paused {
			c.command("pause", c.player.Pause, func() {
				c.markPaused(true, sync.PositionMs)
			})
			return
		}
		pos := sync.PositionMs
		c.command("resume", c.player.Resume, func() {
			c.markPaused(false, c.state.PositionMs)
			if c.drift(pos) > c.policy.DriftTolerance {
				c.command("seek", c.seekFn(pos), func() { c.markPosition(pos) })
			}
		})
		return
	}

	if d := c.drift(sync.PositionMs); d > c.policy.DriftTolerance {
		c.logger.Debug("correcting drift", "drift", d)
		pos := sync.PositionMs
		c.command("seek", c.seekFn(pos), func() { c.markPosition(pos) })
	}
}

func (c *Coordinator) drift(peerMs int) time.Duration {
	d := c.state.EstimatedPosition(c.clock.Now()) - peerMs
	if d < 0 {
		d = -d
	}
	return time.Duration(d) * time.Millisecond
}

// onSyncRequest answers a newcomer with the current state. Listeners stay quiet.
func (c *Coordinator) onSyncRequest() {
	if c.role != models.RoleSource || c.state.Track == nil {
		return
	}
	now := c.clock.Now()
	c.publish(relay.NewSongUpdate(c.session, *c.state.Track, c.state.Paused, c.state.EstimatedPosition(now)))
}

// scheduleBroadcast debounces outbound changes through the stabilization timer. A pending song_play is
// never downgraded to song_update.
func (c *Coordinator) scheduleBroadcast(kind relay.EventType) {
	if c.role != models.RoleSource {
		return
	}
	if c.broadcastKind != relay.EventSongPlay {
		c.broadcastKind = kind
	}
	c.arm(&c.broadcastTimer, c.policy.Stabilization, c.flushBroadcast)
}

func (c *Coordinator) cancelBroadcast() {
	c.broadcastKind = ""
	c.broadcastTimer.stop()
}

func (c *Coordinator) flushBroadcast() {
	kind := c.broadcastKind
	c.broadcastKind = ""
	if c.role != models.RoleSource || c.state.Track == nil {
		return
	}

	now := c.clock.Now()
	track := *c.state.Track
	pos := c.state.EstimatedPosition(now)

	// song_play carries the confirmed start position; song_update the extrapolated playhead.
	switch kind {
	case relay.EventSongPlay:
		c.publish(relay.NewSongPlay(c.session, track, c.state.PositionMs))
	case relay.EventSongUpdate:
		c.publish(relay.NewSongUpdate(c.session, track, c.state.Paused, pos))
	default:
		return
	}
	c.window = c.policy.Protect(now, c.window)
	c.logger.Debug("broadcast", "type", kind, "track", track.ID, "position", pos)
}
