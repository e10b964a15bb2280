package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) ofType(t EventType) []Event {
	var out []Event
	for _, e := range c.snapshot() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestRedisRelay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := shared.NewLogger(io.Discard)

	alice, err := DialRedis(ctx, rdb, models.Session{Room: "lobby", Participant: "alice"}, logger)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := DialRedis(ctx, rdb, models.Session{Room: "lobby", Participant: "bob"}, logger)
	require.NoError(t, err)
	defer bob.Close()

	var aliceGot, bobGot collector
	go alice.Listen(ctx, aliceGot.handle)
	go bob.Listen(ctx, bobGot.handle)

	t.Run("join counts members", func(t *testing.T) {
		require.NoError(t, alice.Publish(ctx, NewJoin(models.Session{Room: "lobby", Participant: "alice"})))
		require.NoError(t, bob.Publish(ctx, NewJoin(models.Session{Room: "lobby", Participant: "bob"})))

		require.Eventually(t, func() bool { return len(aliceGot.ofType(EventRoomMessage)) == 2 }, time.Second, 10*time.Millisecond)
		msgs := aliceGot.ofType(EventRoomMessage)
		assert.Equal(t, 1, msgs[0].Message.Listeners)
		assert.Equal(t, 2, msgs[1].Message.Listeners)

		members, err := mr.Members(membersKey("lobby"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, members)
	})

	t.Run("song_play mirrored to peers only", func(t *testing.T) {
		track := models.TrackRef{ID: "spotify:track:7", Title: "Seven"}
		require.NoError(t, alice.Publish(ctx, NewSongPlay(models.Session{}, track, 500)))

		require.Eventually(t, func() bool { return len(bobGot.ofType(EventSongPlaySync)) == 1 }, time.Second, 10*time.Millisecond)
		evt := bobGot.ofType(EventSongPlaySync)[0]
		assert.Equal(t, "alice", evt.Sender)
		assert.Equal(t, "lobby", evt.Room)
		assert.Equal(t, track, evt.Play.Song)

		// Give alice's subscription time to see (and drop) her own publish.
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, aliceGot.ofType(EventSongPlaySync))
		assert.Empty(t, aliceGot.ofType(EventSongPlay))
	})

	t.Run("malformed messages dropped", func(t *testing.T) {
		require.NoError(t, rdb.Publish(ctx, channelKey("lobby"), `{"type":"song_play","room_key":"lobby","sender":"mallory","payload":{}}`).Err())
		require.NoError(t, bob.Publish(ctx, NewSyncRequest(models.Session{})))

		require.Eventually(t, func() bool { return len(aliceGot.ofType(EventSyncRequest)) == 1 }, time.Second, 10*time.Millisecond)
		for _, e := range aliceGot.snapshot() {
			assert.NotEqual(t, "mallory", e.Sender)
		}
	})

	t.Run("leave and close", func(t *testing.T) {
		require.NoError(t, bob.Publish(ctx, NewLeave(models.Session{})))
		require.Eventually(t, func() bool { return len(aliceGot.ofType(EventRoomMessage)) == 3 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, aliceGot.ofType(EventRoomMessage)[2].Message.Listeners)

		require.NoError(t, bob.Close())
		assert.ErrorIs(t, bob.Publish(ctx, NewSyncRequest(models.Session{})), shared.ErrRelayClosed)
	})
}
