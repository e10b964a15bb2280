package models

import (
	"testing"
	"time"
)

func TestPlaybackState(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	track := &TrackRef{ID: "spotify:track:1", DurationMs: 10_000}

	tc := []struct {
		name  string
		state PlaybackState
		now   time.Time
		want  int
	}{
		{
			name:  "playing extrapolates",
			state: PlaybackState{Track: track, PositionMs: 1000, LastUpdated: base},
			now:   base.Add(1500 * time.Millisecond),
			want:  2500,
		},
		{
			name:  "paused holds position",
			state: PlaybackState{Track: track, Paused: true, PositionMs: 1000, LastUpdated: base},
			now:   base.Add(5 * time.Second),
			want:  1000,
		},
		{
			name:  "clamped to duration",
			state: PlaybackState{Track: track, PositionMs: 9000, LastUpdated: base},
			now:   base.Add(time.Minute),
			want:  10_000,
		},
		{
			name:  "empty state",
			state: PlaybackState{PositionMs: 300},
			now:   base,
			want:  300,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.EstimatedPosition(tt.now); got != tt.want {
				t.Errorf("EstimatedPosition() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrackRef(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		tc := []struct {
			ref  TrackRef
			want string
		}{
			{TrackRef{ID: "spotify:track:1"}, "spotify:track:1"},
			{TrackRef{ID: "x", Title: "Song"}, "Song"},
			{TrackRef{ID: "x", Title: "Song", Artist: "Band"}, "Band - Song"},
		}
		for _, tt := range tc {
			if got := tt.ref.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		}
	})

	t.Run("Same", func(t *testing.T) {
		a := TrackRef{ID: "a"}
		if a.Same(nil) {
			t.Error("nil should never match")
		}
		if !a.Same(&TrackRef{ID: "a", Title: "other metadata"}) {
			t.Error("refs with equal IDs should match")
		}
	})
}

func TestSession(t *testing.T) {
	if err := (Session{Room: "r", Participant: "p"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Session{Room: " ", Participant: "p"}).Validate(); err == nil {
		t.Error("expected error for blank room")
	}
	if err := (Session{Room: "r"}).Validate(); err == nil {
		t.Error("expected error for missing participant")
	}
	if RoleSource.String() != "source" || RoleListener.String() != "listener" {
		t.Error("unexpected role names")
	}
}
