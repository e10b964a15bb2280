package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

func TestPolicyAdmit(t *testing.T) {
	p := Policy{DefaultTimings()}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) time.Time { return t0.Add(d) }

	played := RateLimitWindow{LastPlay: t0, LastTrackID: "a"}

	tc := []struct {
		name     string
		now      time.Time
		window   RateLimitWindow
		inFlight bool
		track    string
		origin   Origin
		want     Verdict
	}{
		{"first play", t0, RateLimitWindow{}, false, "a", OriginUser, Admitted},
		{"same track within dedup", at(1500 * time.Millisecond), played, false, "a", OriginUser, RejectedDuplicate},
		{"same track after dedup", at(2 * time.Second), played, false, "a", OriginSync, Admitted},
		{"other track within cooldown", at(500 * time.Millisecond), played, false, "b", OriginUser, RejectedCooldown},
		{"other track after cooldown", at(time.Second), played, false, "b", OriginUser, Admitted},
		{"in flight", at(3 * time.Second), played, true, "b", OriginSync, RejectedInFlight},
		{"duplicate wins over in flight", at(100 * time.Millisecond), played, true, "a", OriginSync, RejectedDuplicate},
		{"restore skips dedup", at(600 * time.Millisecond), played, false, "a", OriginRestore, Admitted},
		{"restore cooldown", at(400 * time.Millisecond), played, false, "a", OriginRestore, RejectedCooldown},
		{"penalty first", at(5 * time.Second), RateLimitWindow{PenaltyUntil: at(10 * time.Second)}, true, "a", OriginRestore, RejectedPenalty},
		{"penalty expired", at(10 * time.Second), RateLimitWindow{PenaltyUntil: at(10 * time.Second)}, false, "a", OriginUser, Admitted},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Admit(tt.now, tt.window, tt.inFlight, tt.track, tt.origin); got != tt.want {
				t.Errorf("Admit() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPolicyWindows(t *testing.T) {
	p := Policy{DefaultTimings()}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Protect", func(t *testing.T) {
		w := p.Protect(t0, RateLimitWindow{})
		if !p.Protected(t0.Add(4999*time.Millisecond), w) {
			t.Error("expected protection inside the window")
		}
		if p.Protected(t0.Add(5*time.Second), w) {
			t.Error("expected protection to end after 5s")
		}
	})

	t.Run("Penalize", func(t *testing.T) {
		w := p.Penalize(t0, RateLimitWindow{})
		if !p.Penalized(t0.Add(9*time.Second), w) || p.Penalized(t0.Add(10*time.Second), w) {
			t.Errorf("unexpected penalty window %v", w.PenaltyUntil)
		}
	})

	t.Run("CooldownRemaining", func(t *testing.T) {
		w := p.Record(t0, RateLimitWindow{}, "a")
		if got := p.CooldownRemaining(t0.Add(300*time.Millisecond), w, OriginSync); got != 700*time.Millisecond {
			t.Errorf("CooldownRemaining() = %v", got)
		}
		if got := p.CooldownRemaining(t0.Add(300*time.Millisecond), w, OriginRestore); got != 200*time.Millisecond {
			t.Errorf("restore CooldownRemaining() = %v", got)
		}
		if got := p.CooldownRemaining(t0.Add(time.Hour), w, OriginUser); got != 0 {
			t.Errorf("expired CooldownRemaining() = %v", got)
		}
	})
}

func TestSourcePolicy(t *testing.T) {
	a := &models.TrackRef{ID: "a"}

	t.Run("yield", func(t *testing.T) {
		if SourceYield.Yields(a, models.TrackRef{ID: "a"}) {
			t.Error("yield should not give way for the same track")
		}
		if !SourceYield.Yields(a, models.TrackRef{ID: "b"}) {
			t.Error("yield should give way for a different track")
		}
		if !SourceYield.Yields(nil, models.TrackRef{ID: "b"}) {
			t.Error("yield should give way when nothing is playing")
		}
	})

	t.Run("hold", func(t *testing.T) {
		if SourceHold.Yields(a, models.TrackRef{ID: "b"}) {
			t.Error("hold never gives way")
		}
	})

	t.Run("parse", func(t *testing.T) {
		for in, want := range map[string]SourcePolicy{"": SourceYield, "Yield": SourceYield, " hold ": SourceHold} {
			got, err := ParseSourcePolicy(in)
			if err != nil || got != want {
				t.Errorf("ParseSourcePolicy(%q) = %v, %v", in, got, err)
			}
		}
		if _, err := ParseSourcePolicy("grab"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestRestorationCounter(t *testing.T) {
	r := RestorationCounter{Bound: 3}
	for i := 1; i <= 3; i++ {
		if !r.Next() || r.Attempts != i {
			t.Fatalf("attempt %d refused", i)
		}
	}
	if r.Next() {
		t.Error("fourth attempt should be refused")
	}
	r.Reset()
	if r.Attempts != 0 || !r.Next() {
		t.Error("reset should start a fresh episode")
	}
}

func TestTimingsFromConfig(t *testing.T) {
	got := TimingsFromConfig(shared.SyncConfig{CooldownMs: 250, RestoreAttempts: 0})
	want := DefaultTimings()
	want.Cooldown = 250 * time.Millisecond
	if got != want {
		t.Errorf("TimingsFromConfig() = %+v, want %+v", got, want)
	}
}
