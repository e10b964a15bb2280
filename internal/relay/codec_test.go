package relay

import (
	"errors"
	"testing"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

var testSession = models.Session{Room: "lobby", Participant: "alice"}

func TestCodec(t *testing.T) {
	track := models.TrackRef{ID: "spotify:track:1", Title: "One", Artist: "Band", DurationMs: 180_000}

	t.Run("song_play round trip", func(t *testing.T) {
		data, err := Encode(NewSongPlay(testSession, track, 1200))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}

		evt, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if evt.Type != EventSongPlay || evt.Room != "lobby" || evt.Sender != "alice" {
			t.Errorf("unexpected envelope %+v", evt)
		}
		if evt.Play == nil || evt.Play.Song != track || evt.Play.PositionMs != 1200 {
			t.Errorf("unexpected payload %+v", evt.Play)
		}
	})

	t.Run("sync_request has no payload", func(t *testing.T) {
		data, err := Encode(NewSyncRequest(testSession))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		evt, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if evt.Type != EventSyncRequest {
			t.Errorf("expected sync_request, got %s", evt.Type)
		}
	})

	t.Run("song_update fills track_info uri", func(t *testing.T) {
		raw := `{"type":"sync_playback","room_key":"lobby","sender":"bob","payload":{"state":{"is_paused":true,"track_uri":"spotify:track:9","position_ms":42,"duration_ms":1000,"track_info":{"title":"Nine"}}}}`
		evt, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}

		sync, ok := evt.Sync()
		if !ok {
			t.Fatal("expected sync state")
		}
		if sync.Track.ID != "spotify:track:9" || sync.Track.Title != "Nine" || sync.Track.DurationMs != 1000 {
			t.Errorf("unexpected track %+v", sync.Track)
		}
		if !sync.Paused || !sync.HasPaused || sync.PositionMs != 42 {
			t.Errorf("unexpected sync state %+v", sync)
		}
	})

	t.Run("invalid frames", func(t *testing.T) {
		tc := []struct {
			name string
			raw  string
		}{
			{"not json", `{"type":`},
			{"unknown type", `{"type":"dance","room_key":"lobby"}`},
			{"missing room", `{"type":"sync_request"}`},
			{"missing payload", `{"type":"song_play_sync","room_key":"lobby"}`},
			{"missing track uri", `{"type":"song_play_sync","room_key":"lobby","payload":{"song":{"title":"x"},"position_ms":0}}`},
			{"negative position", `{"type":"song_play_sync","room_key":"lobby","payload":{"song":{"uri":"u"},"position_ms":-5}}`},
			{"wrong payload shape", `{"type":"room_message","room_key":"lobby","payload":"hello"}`},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Decode([]byte(tt.raw))
				if !errors.Is(err, shared.ErrInvalidSyncPayload) {
					t.Errorf("Decode() error = %v, want ErrInvalidSyncPayload", err)
				}
			})
		}
	})

	t.Run("Encode rejects missing payload", func(t *testing.T) {
		_, err := Encode(Event{Type: EventSongPlay, Room: "lobby"})
		if !errors.Is(err, shared.ErrInvalidSyncPayload) {
			t.Errorf("Encode() error = %v, want ErrInvalidSyncPayload", err)
		}
	})
}

func TestMirror(t *testing.T) {
	tc := []struct {
		in   EventType
		want EventType
	}{
		{EventSongPlay, EventSongPlaySync},
		{EventSongUpdate, EventSyncPlayback},
		{EventSyncRequest, EventSyncRequest},
		{EventRoomMessage, EventRoomMessage},
	}

	for _, tt := range tc {
		if got := Mirror(Event{Type: tt.in}).Type; got != tt.want {
			t.Errorf("Mirror(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if !Mirror(NewSongPlay(testSession, models.TrackRef{ID: "x"}, 0)).IsSync() {
		t.Error("mirrored song_play should be a sync event")
	}
	if EventRoomMessage.ExcludesSender() {
		t.Error("room messages go to everyone")
	}
}
