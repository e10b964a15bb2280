package services

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

// StateReader is the part of [Player] the [Watcher] polls.
type StateReader interface {
	State(ctx context.Context) (*models.DeviceState, error)
}

// WatcherOpts configures a [Watcher]. Zero values take defaults.
type WatcherOpts struct {
	Interval      time.Duration
	SeekTolerance time.Duration
	Clock         clock.Clock
	Logger        *log.Logger
}

// Watcher turns a polled device into a stream of change notifications.
//
// The Web API has no push channel, so the device is polled on an interval and a notification is emitted
// only when the track, the paused flag or the playhead (beyond what elapsed time explains) changes, or
// when playback stops.
type Watcher struct {
	reader        StateReader
	interval      time.Duration
	seekTolerance time.Duration
	clock         clock.Clock
	logger        *log.Logger

	primed bool
	last   *models.DeviceState
	lastAt time.Time
}

// NewWatcher creates a watcher over reader.
func NewWatcher(reader StateReader, opts WatcherOpts) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.SeekTolerance <= 0 {
		opts.SeekTolerance = 2500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Watcher{
		reader:        reader,
		interval:      opts.Interval,
		seekTolerance: opts.SeekTolerance,
		clock:         opts.Clock,
		logger:        shared.WithLogger(opts.Logger, "component", "watcher"),
	}
}

// Run polls until ctx is cancelled, calling fn for the first observation and every change after it.
// Poll failures are logged and skipped.
func (w *Watcher) Run(ctx context.Context, fn func(*models.DeviceState)) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	w.poll(ctx, fn)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx, fn)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, fn func(*models.DeviceState)) {
	state, err := w.reader.State(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("device poll failed", "error", err)
		}
		return
	}

	now := w.clock.Now()
	if !w.primed || StateChanged(w.last, now.Sub(w.lastAt), state, w.seekTolerance) {
		fn(state)
	}
	w.primed, w.last, w.lastAt = true, state, now
}

// StateChanged reports whether next differs meaningfully from prev observed elapsed ago.
//
// A playing device is expected to have advanced by elapsed; drift beyond tolerance counts as a seek.
func StateChanged(prev *models.DeviceState, elapsed time.Duration, next *models.DeviceState, tolerance time.Duration) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	case prev.Track == nil || next.Track == nil:
		return prev.Track != next.Track
	case prev.Track.ID != next.Track.ID:
		return true
	case prev.Paused != next.Paused:
		return true
	}

	expected := prev.PositionMs
	if !prev.Paused {
		expected += int(elapsed / time.Millisecond)
	}
	drift := time.Duration(next.PositionMs-expected) * time.Millisecond
	return drift > tolerance || drift < -tolerance
}
