package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

const memberBuffer = 64

// Hub routes events between the members of each room.
//
// It backs the WebSocket relay server and serves as an in-process relay for tests:
// song_play and song_update are mirrored to every other member, sync_request is
// forwarded to every other member, and membership changes produce a room_message
// carrying the listener count.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Member]struct{}
	logger *log.Logger
}

// NewHub creates an empty [Hub].
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Hub{
		rooms:  make(map[string]map[*Member]struct{}),
		logger: shared.WithLogger(logger, "component", "hub"),
	}
}

// Member is one participant's attachment to a [Hub]. It implements [Relay].
type Member struct {
	hub     *Hub
	session models.Session
	out     chan Event
	done    chan struct{}
	once    sync.Once
}

// Join registers session in its room and announces it to everyone there, including the new member.
func (h *Hub) Join(session models.Session) *Member {
	m := &Member{
		hub:     h,
		session: session,
		out:     make(chan Event, memberBuffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	members, ok := h.rooms[session.Room]
	if !ok {
		members = make(map[*Member]struct{})
		h.rooms[session.Room] = members
	}
	members[m] = struct{}{}
	count := len(members)
	h.mu.Unlock()

	h.logger.Info("member joined", "room", session.Room, "participant", session.Participant, "listeners", count)
	h.broadcast(nil, NewRoomMessage(session.Room, fmt.Sprintf("%s has entered the room. (%d listeners)", session.Participant, count), count))
	return m
}

// Leave removes m from its room and announces the departure. Calling it twice is harmless.
func (h *Hub) Leave(m *Member) {
	m.once.Do(func() {
		close(m.done)

		h.mu.Lock()
		members := h.rooms[m.session.Room]
		delete(members, m)
		count := len(members)
		if count == 0 {
			delete(h.rooms, m.session.Room)
		}
		h.mu.Unlock()

		h.logger.Info("member left", "room", m.session.Room, "participant", m.session.Participant, "listeners", count)
		if count > 0 {
			h.broadcast(nil, NewRoomMessage(m.session.Room, fmt.Sprintf("%s has left the room. (%d listeners)", m.session.Participant, count), count))
		}
	})
}

// Listeners returns the number of members in room.
func (h *Hub) Listeners(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Rooms returns the number of rooms with at least one member.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Route applies the relay rules to an event published by from.
func (h *Hub) Route(from *Member, evt Event) {
	evt.Room = from.session.Room
	evt.Sender = from.session.Participant

	switch evt.Type {
	case EventJoin:
		// Membership is established by Join; a join frame only confirms it.
	case EventLeave:
		h.Leave(from)
	case EventSongPlay, EventSongUpdate, EventSyncRequest:
		h.broadcast(from, Mirror(evt))
	default:
		h.logger.Warn("dropping event clients may not publish", "type", evt.Type, "participant", evt.Sender)
	}
}

// broadcast delivers evt to every member of its room except exclude. Slow members drop events rather than
// stall the room.
func (h *Hub) broadcast(exclude *Member, evt Event) {
	h.mu.Lock()
	targets := make([]*Member, 0, len(h.rooms[evt.Room]))
	for m := range h.rooms[evt.Room] {
		if m != exclude {
			targets = append(targets, m)
		}
	}
	h.mu.Unlock()

	for _, m := range targets {
		select {
		case m.out <- evt:
		case <-m.done:
		default:
			h.logger.Warn("member buffer full, dropping event", "participant", m.session.Participant, "type", evt.Type)
		}
	}
}

// Session returns the member's session.
func (m *Member) Session() models.Session { return m.session }

// Events exposes the member's inbound queue.
func (m *Member) Events() <-chan Event { return m.out }

// Done is closed once the member has left.
func (m *Member) Done() <-chan struct{} { return m.done }

// Publish routes evt through the hub.
func (m *Member) Publish(ctx context.Context, evt Event) error {
	select {
	case <-m.done:
		return shared.ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	m.hub.Route(m, evt)
	return nil
}

// Listen delivers queued events to fn until ctx is cancelled or the member leaves.
func (m *Member) Listen(ctx context.Context, fn Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case evt := <-m.out:
			fn(evt)
		}
	}
}

// Close leaves the hub.
func (m *Member) Close() error {
	m.hub.Leave(m)
	return nil
}
