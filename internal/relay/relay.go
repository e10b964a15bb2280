package relay

import "context"

// Handler receives inbound events. Implementations call it from a single goroutine.
type Handler func(Event)

// Relay is a room-scoped publish/subscribe channel.
//
// Publish is fire-and-forget from the caller's point of view: it returns once the frame is handed to the
// transport, not once peers have received it. Listen blocks, delivering inbound events to fn until ctx is
// cancelled or the relay is closed.
type Relay interface {
	Publish(ctx context.Context, evt Event) error
	Listen(ctx context.Context, fn Handler) error
	Close() error
}

var (
	_ Relay = (*Member)(nil)
	_ Relay = (*WebSocketRelay)(nil)
	_ Relay = (*RedisRelay)(nil)
)
