package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisRelay shares a room through Redis pub/sub without a relay server.
//
// Every participant publishes to and subscribes on the room channel. Sender exclusion happens on receipt,
// and membership is kept in a Redis set so join and leave can report a listener count.
type RedisRelay struct {
	client  redis.UniversalClient
	sub     *redis.PubSub
	session models.Session
	closed  chan struct{}
	once    sync.Once
	logger  *log.Logger
}

func channelKey(room string) string { return "jamroom:room:" + room }
func membersKey(room string) string { return "jamroom:room:" + room + ":members" }

// DialRedis subscribes session to its room channel. The subscription is confirmed before returning, so
// replies to an immediate sync_request are not missed.
func DialRedis(ctx context.Context, client redis.UniversalClient, session models.Session, logger *log.Logger) (*RedisRelay, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	sub := client.Subscribe(ctx, channelKey(session.Room))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", shared.ErrServiceUnavailable, channelKey(session.Room), err)
	}

	return &RedisRelay{
		client:  client,
		sub:     sub,
		session: session,
		closed:  make(chan struct{}),
		logger:  shared.WithLogger(logger, "component", "relay", "transport", "redis"),
	}, nil
}

// Publish sends evt to the room. Join and leave update the member set and are announced as a room_message.
func (r *RedisRelay) Publish(ctx context.Context, evt Event) error {
	select {
	case <-r.closed:
		return shared.ErrRelayClosed
	default:
	}

	evt.Room = r.session.Room
	evt.Sender = r.session.Participant

	switch evt.Type {
	case EventJoin, EventLeave:
		return r.announce(ctx, evt.Type)
	case EventSongPlay, EventSongUpdate, EventSyncRequest:
		return r.publish(ctx, evt)
	default:
		return fmt.Errorf("%w: clients may not publish %s", shared.ErrInvalidSyncPayload, evt.Type)
	}
}

func (r *RedisRelay) publish(ctx context.Context, evt Event) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, channelKey(r.session.Room), data).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", shared.ErrServiceUnavailable, err)
	}
	return nil
}

func (r *RedisRelay) announce(ctx context.Context, kind EventType) error {
	key := membersKey(r.session.Room)
	verb := "entered"
	var err error
	if kind == EventJoin {
		err = r.client.SAdd(ctx, key, r.session.Participant).Err()
	} else {
		verb = "left"
		err = r.client.SRem(ctx, key, r.session.Participant).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: update members: %v", shared.ErrServiceUnavailable, err)
	}

	count, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: count members: %v", shared.ErrServiceUnavailable, err)
	}

	msg := fmt.Sprintf("%s has %s the room. (%d listeners)", r.session.Participant, verb, count)
	return r.publish(ctx, NewRoomMessage(r.session.Room, msg, int(count)))
}

// Listen delivers room events, mirrored the way a relay server would, skipping this participant's own
// publishes.
func (r *RedisRelay) Listen(ctx context.Context, fn Handler) error {
	ch := r.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.closed:
			return nil
		case msg, ok := <-ch:
			if !ok {
				return shared.ErrRelayClosed
			}
			evt, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping inbound message", "error", err)
				continue
			}
			if evt.Type.ExcludesSender() && evt.Sender == r.session.Participant {
				continue
			}
			fn(Mirror(evt))
		}
	}
}

// Close unsubscribes. The shared client is left open for its owner.
func (r *RedisRelay) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		err = r.sub.Close()
	})
	return err
}
