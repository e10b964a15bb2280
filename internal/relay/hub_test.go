package relay

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// next waits briefly for the member's next event.
func next(t *testing.T, m *Member) Event {
	t.Helper()
	select {
	case evt := <-m.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertQuiet(t *testing.T, m *Member) {
	t.Helper()
	select {
	case evt := <-m.Events():
		t.Fatalf("unexpected event %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("join announces listener count", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})

		evt := next(t, alice)
		require.Equal(t, EventRoomMessage, evt.Type)
		assert.Equal(t, 1, evt.Message.Listeners)
		assert.Contains(t, evt.Message.Msg, "alice has entered")

		bob := hub.Join(models.Session{Room: "lobby", Participant: "bob"})
		assert.Equal(t, 2, next(t, alice).Message.Listeners)
		assert.Equal(t, 2, next(t, bob).Message.Listeners)
		assert.Equal(t, 2, hub.Listeners("lobby"))
	})

	t.Run("song_play reaches peers as song_play_sync", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})
		bob := hub.Join(models.Session{Room: "lobby", Participant: "bob"})
		other := hub.Join(models.Session{Room: "elsewhere", Participant: "carol"})
		next(t, alice)
		next(t, alice)
		next(t, bob)
		next(t, other)

		track := models.TrackRef{ID: "spotify:track:1"}
		require.NoError(t, alice.Publish(ctx, NewSongPlay(alice.Session(), track, 0)))

		evt := next(t, bob)
		assert.Equal(t, EventSongPlaySync, evt.Type)
		assert.Equal(t, "alice", evt.Sender)
		assert.Equal(t, track, evt.Play.Song)

		assertQuiet(t, alice)
		assertQuiet(t, other)
	})

	t.Run("sync_request forwarded to others", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})
		bob := hub.Join(models.Session{Room: "lobby", Participant: "bob"})
		next(t, alice)
		next(t, alice)
		next(t, bob)

		require.NoError(t, bob.Publish(ctx, NewSyncRequest(bob.Session())))
		assert.Equal(t, EventSyncRequest, next(t, alice).Type)
		assertQuiet(t, bob)
	})

	t.Run("leave announces and closes", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})
		bob := hub.Join(models.Session{Room: "lobby", Participant: "bob"})
		next(t, alice)
		next(t, alice)

		require.NoError(t, bob.Publish(ctx, NewLeave(bob.Session())))
		evt := next(t, alice)
		assert.Equal(t, 1, evt.Message.Listeners)
		assert.Contains(t, evt.Message.Msg, "bob has left")

		assert.ErrorIs(t, bob.Publish(ctx, NewSyncRequest(bob.Session())), shared.ErrRelayClosed)
		require.NoError(t, bob.Close())

		require.NoError(t, alice.Close())
		assert.Equal(t, 0, hub.Rooms())
	})

	t.Run("clients cannot forge relay events", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})
		bob := hub.Join(models.Session{Room: "lobby", Participant: "bob"})
		next(t, bob)

		require.NoError(t, alice.Publish(ctx, NewRoomMessage("lobby", "fake", 99)))
		assertQuiet(t, bob)
	})

	t.Run("Listen delivers until cancelled", func(t *testing.T) {
		hub := NewHub(logger)
		alice := hub.Join(models.Session{Room: "lobby", Participant: "alice"})

		lctx, cancel := context.WithCancel(ctx)
		got := make(chan Event, 4)
		done := make(chan error, 1)
		go func() { done <- alice.Listen(lctx, func(e Event) { got <- e }) }()

		require.Eventually(t, func() bool { return len(got) == 1 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Listen did not return after cancel")
		}
	})
}
