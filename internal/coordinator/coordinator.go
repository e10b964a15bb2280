package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/shared"
)

const (
	eventBuffer    = 64
	outboxBuffer   = 32
	commandTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	leaveTimeout   = 2 * time.Second
)

// Player is the playback device the coordinator commands.
type Player interface {
	LoadAndPlay(ctx context.Context, track models.TrackRef, positionMs int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, percent int) error
	State(ctx context.Context) (*models.DeviceState, error)
}

// Publisher sends events to the room.
type Publisher interface {
	Publish(ctx context.Context, evt relay.Event) error
}

// Catalog fills in metadata for bare track refs.
type Catalog interface {
	TrackRef(ctx context.Context, id string) (*models.TrackRef, error)
}

// PlayRecorder logs started tracks.
type PlayRecorder interface {
	Record(ctx context.Context, room string, track models.TrackRef, origin string) (*models.Play, error)
}

// Options wires a [Coordinator]. Session, Player, Relay and Presenter are required.
type Options struct {
	Session      models.Session
	Player       Player
	Relay        Publisher
	Presenter    Presenter
	Catalog      Catalog
	History      PlayRecorder
	Timings      Timings
	SourcePolicy SourcePolicy
	Clock        clock.Clock
	Logger       *log.Logger
}

// playRequest is a requestPlay call. pauseAfter pauses once the track has loaded.
type playRequest struct {
	track      models.TrackRef
	positionMs int
	origin     Origin
	pauseAfter bool
}

// Coordinator keeps the local device in step with the room.
//
// All state below the loop marker is owned by the event loop started by [Coordinator.Run]; every other
// goroutine reaches it by posting a closure.
type Coordinator struct {
	session      models.Session
	player       Player
	relay        Publisher
	presenter    Presenter
	catalog      Catalog
	history      PlayRecorder
	policy       Policy
	sourcePolicy SourcePolicy
	clock        clock.Clock
	logger       *log.Logger

	events chan func()
	outbox chan relay.Event
	done   chan struct{}
	ctx    context.Context

	// loop
	role       models.Role
	state      models.PlaybackState
	window     RateLimitWindow
	inFlight   bool
	engaged    bool
	remembered *models.TrackRef
	restore    RestorationCounter
	listeners  int
	volume     int
	looked     *models.TrackRef

	pending      *playRequest
	pendingTimer loopTimer
	restoreTimer loopTimer

	broadcastKind  relay.EventType
	broadcastTimer loopTimer

	progress     *clock.Ticker
	progressStop chan struct{}
	polling      bool
}

// New validates opts and builds a coordinator. Nothing runs until [Coordinator.Run].
func New(opts Options) (*Coordinator, error) {
	if err := opts.Session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if opts.Player == nil || opts.Relay == nil || opts.Presenter == nil {
		return nil, fmt.Errorf("%w: player, relay and presenter are required", shared.ErrMissingArgument)
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Coordinator{
		session:      opts.Session,
		player:       opts.Player,
		relay:        opts.Relay,
		presenter:    opts.Presenter,
		catalog:      opts.Catalog,
		history:      opts.History,
		policy:       Policy{opts.Timings},
		sourcePolicy: opts.SourcePolicy,
		clock:        opts.Clock,
		logger:       shared.WithLogger(opts.Logger, "component", "coordinator", "room", opts.Session.Room),
		events:       make(chan func(), eventBuffer),
		outbox:       make(chan relay.Event, outboxBuffer),
		done:         make(chan struct{}),
		ctx:          context.Background(),
		restore:      RestorationCounter{Bound: opts.Timings.RestoreAttempts},
		listeners:    1,
	}, nil
}

// Session returns the room and participant this coordinator serves.
func (c *Coordinator) Session() models.Session { return c.session }

// Run joins the room, asks peers for their state, and processes events until ctx is cancelled.
// On the way out it stops every timer and announces the leave.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	sent := make(chan struct{})
	go c.drainOutbox(ctx, sent)

	c.publish(relay.NewJoin(c.session))
	c.publish(relay.NewSyncRequest(c.session))
	c.present()

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			select {
			case <-sent:
			case <-time.After(leaveTimeout + time.Second):
				c.logger.Warn("leave not confirmed before shutdown")
			}
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Coordinator) teardown() {
	c.pendingTimer.stop()
	c.restoreTimer.stop()
	c.broadcastTimer.stop()
	c.stopProgress()
	c.pending = nil
	close(c.done)

	c.outbox <- relay.NewLeave(c.session)
	close(c.outbox)
}

// drainOutbox publishes queued events in order. Once ctx ends, whatever is left (the leave) is sent
// with a short timeout of its own.
func (c *Coordinator) drainOutbox(ctx context.Context, sent chan<- struct{}) {
	defer close(sent)

	base := context.WithoutCancel(ctx)
	for evt := range c.outbox {
		timeout := publishTimeout
		if evt.Type == relay.EventLeave {
			timeout = leaveTimeout
		}
		pctx, cancel := context.WithTimeout(base, timeout)
		err := c.relay.Publish(pctx, evt)
		cancel()
		if err != nil && !errors.Is(err, shared.ErrRelayClosed) {
			c.logger.Warn("publish failed", "type", evt.Type, "error", err)
		}
	}
}

// post queues fn on the event loop. It reports false once the loop has shut down.
func (c *Coordinator) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// publish queues evt for the room without blocking the loop.
func (c *Coordinator) publish(evt relay.Event) {
	select {
	case c.outbox <- evt:
	default:
		c.logger.Warn("outbox full, dropping event", "type", evt.Type)
	}
}

// call runs a device command off the loop and hands its result back to then on the loop.
// The command outlives cancellation of the session; its result is dropped if the loop is gone.
func (c *Coordinator) call(fn func(context.Context) error, then func(error)) {
	c.inFlight = true
	base := context.WithoutCancel(c.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(base, commandTimeout)
		err := fn(ctx)
		cancel()
		c.post(func() { then(err) })
	}()
}

// HandleEvent delivers a relay event. It is safe to use as a [relay.Handler].
func (c *Coordinator) HandleEvent(evt relay.Event) {
	c.post(func() { c.onEvent(evt) })
}

// HandleDevice delivers a device notification; nil means nothing is loaded.
func (c *Coordinator) HandleDevice(state *models.DeviceState) {
	c.post(func() { c.onDevice(state) })
}

// snapshot returns the current view from inside the loop.
func (c *Coordinator) snapshot(ctx context.Context) (View, error) {
	out := make(chan View, 1)
	if !c.post(func() { out <- c.view() }) {
		return View{}, shared.ErrRelayClosed
	}
	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// loopTimer is a clock timer whose callback runs on the event loop and is discarded once the timer is
// stopped or re-armed.
type loopTimer struct {
	t   *clock.Timer
	gen int
}

func (c *Coordinator) arm(lt *loopTimer, d time.Duration, fn func()) {
	lt.stop()
	gen := lt.gen
	lt.t = c.clock.AfterFunc(d, func() {
		c.post(func() {
			if lt.gen != gen {
				return
			}
			lt.t = nil
			fn()
		})
	})
}

func (lt *loopTimer) stop() {
	if lt.t != nil {
		lt.t.Stop()
		lt.t = nil
	}
	lt.gen++
}

func (lt *loopTimer) armed() bool { return lt.t != nil }
