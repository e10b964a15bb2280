package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

// Origin says why a play was requested.
type Origin int

const (
	// OriginUser is a local track selection.
	OriginUser Origin = iota
	// OriginSync follows a peer's broadcast.
	OriginSync
	// OriginRestore replays the remembered track after an unsolicited stop.
	OriginRestore
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginSync:
		return "sync"
	case OriginRestore:
		return "restore"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Verdict is the outcome of an admission check.
type Verdict int

const (
	Admitted Verdict = iota
	RejectedPenalty
	RejectedDuplicate
	RejectedInFlight
	RejectedCooldown
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case RejectedPenalty:
		return "rate-limit penalty"
	case RejectedDuplicate:
		return "duplicate"
	case RejectedInFlight:
		return "command in flight"
	case RejectedCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Admitted reports whether the request may proceed.
func (v Verdict) Admitted() bool { return v == Admitted }

// Deferrable reports whether a rejected sync can be retried once the guard clears.
func (v Verdict) Deferrable() bool { return v == RejectedInFlight || v == RejectedCooldown }

// RateLimitWindow tracks the timestamps the policy decides over.
type RateLimitWindow struct {
	LastPlay       time.Time
	LastTrackID    string
	PenaltyUntil   time.Time
	ProtectedUntil time.Time
}

// Timings holds every duration the coordinator uses.
type Timings struct {
	Cooldown         time.Duration
	RestoreCooldown  time.Duration
	DedupWindow      time.Duration
	RateLimitPenalty time.Duration
	Stabilization    time.Duration
	Protection       time.Duration
	RestoreDelay     time.Duration
	RestoreAttempts  int
	ProgressInterval time.Duration
	DriftTolerance   time.Duration
}

// DefaultTimings returns the values the room was tuned with.
func DefaultTimings() Timings {
	return Timings{
		Cooldown:         time.Second,
		RestoreCooldown:  500 * time.Millisecond,
		DedupWindow:      2 * time.Second,
		RateLimitPenalty: 10 * time.Second,
		Stabilization:    500 * time.Millisecond,
		Protection:       5 * time.Second,
		RestoreDelay:     time.Second,
		RestoreAttempts:  3,
		ProgressInterval: time.Second,
		DriftTolerance:   3 * time.Second,
	}
}

// TimingsFromConfig converts the [sync] section, keeping defaults for unset values.
func TimingsFromConfig(cfg shared.SyncConfig) Timings {
	d := DefaultTimings()
	t := Timings{
		Cooldown:         shared.Ms(cfg.CooldownMs, d.Cooldown),
		RestoreCooldown:  shared.Ms(cfg.RestoreCooldownMs, d.RestoreCooldown),
		DedupWindow:      shared.Ms(cfg.DedupWindowMs, d.DedupWindow),
		RateLimitPenalty: shared.Ms(cfg.RateLimitPenaltyMs, d.RateLimitPenalty),
		Stabilization:    shared.Ms(cfg.StabilizationMs, d.Stabilization),
		Protection:       shared.Ms(cfg.ProtectionMs, d.Protection),
		RestoreDelay:     shared.Ms(cfg.RestoreDelayMs, d.RestoreDelay),
		RestoreAttempts:  cfg.RestoreAttempts,
		ProgressInterval: shared.Ms(cfg.ProgressIntervalMs, d.ProgressInterval),
		DriftTolerance:   shared.Ms(cfg.DriftToleranceMs, d.DriftTolerance),
	}
	if t.RestoreAttempts <= 0 {
		t.RestoreAttempts = d.RestoreAttempts
	}
	return t
}

// Policy decides admission and windows from (now, window). It holds no state.
type Policy struct {
	Timings
}

// Admit checks a play request against the penalty, dedup, in-flight and cooldown guards, in that order.
func (p Policy) Admit(now time.Time, w RateLimitWindow, inFlight bool, trackID string, origin Origin) Verdict {
	elapsed := now.Sub(w.LastPlay)

	if now.Before(w.PenaltyUntil) {
		return RejectedPenalty
	}
	if origin != OriginRestore && trackID != "" && trackID == w.LastTrackID && elapsed < p.DedupWindow {
		return RejectedDuplicate
	}
	if inFlight {
		return RejectedInFlight
	}
	if elapsed < p.cooldown(origin) {
		return RejectedCooldown
	}
	return Admitted
}

// CooldownRemaining is how long until a request of origin clears the cooldown.
func (p Policy) CooldownRemaining(now time.Time, w RateLimitWindow, origin Origin) time.Duration {
	return max(p.cooldown(origin)-now.Sub(w.LastPlay), 0)
}

func (p Policy) cooldown(origin Origin) time.Duration {
	if origin == OriginRestore {
		return p.RestoreCooldown
	}
	return p.Cooldown
}

// Record notes an admitted play.
func (p Policy) Record(now time.Time, w RateLimitWindow, trackID string) RateLimitWindow {
	w.LastPlay = now
	w.LastTrackID = trackID
	return w
}

// Penalize suspends admission after the device reported rate limiting.
func (p Policy) Penalize(now time.Time, w RateLimitWindow) RateLimitWindow {
	w.PenaltyUntil = now.Add(p.RateLimitPenalty)
	return w
}

// Protect opens the echo-suppression window after a broadcast.
func (p Policy) Protect(now time.Time, w RateLimitWindow) RateLimitWindow {
	w.ProtectedUntil = now.Add(p.Protection)
	return w
}

// Protected reports whether inbound sync events must be ignored.
func (p Policy) Protected(now time.Time, w RateLimitWindow) bool {
	return now.Before(w.ProtectedUntil)
}

// Penalized reports whether any command would be refused.
func (p Policy) Penalized(now time.Time, w RateLimitWindow) bool {
	return now.Before(w.PenaltyUntil)
}

// SourcePolicy decides whether a SOURCE gives way to an inbound sync.
type SourcePolicy int

const (
	// SourceYield follows a peer who plays a different track.
	SourceYield SourcePolicy = iota
	// SourceHold ignores every inbound sync while SOURCE.
	SourceHold
)

func (s SourcePolicy) String() string {
	if s == SourceHold {
		return "hold"
	}
	return "yield"
}

// ParseSourcePolicy reads "yield" (or empty) and "hold".
func ParseSourcePolicy(s string) (SourcePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yield":
		return SourceYield, nil
	case "hold":
		return SourceHold, nil
	default:
		return SourceYield, fmt.Errorf("%w: source policy %q", shared.ErrInvalidConfig, s)
	}
}

// Yields reports whether a SOURCE playing current should follow incoming.
func (s SourcePolicy) Yields(current *models.TrackRef, incoming models.TrackRef) bool {
	if s == SourceHold {
		return false
	}
	return !incoming.Same(current)
}

// RestorationCounter bounds restore attempts within one stop episode.
type RestorationCounter struct {
	Attempts int
	Bound    int
}

// Next consumes an attempt, reporting false once the bound is reached.
func (r *RestorationCounter) Next() bool {
	if r.Attempts >= r.Bound {
		return false
	}
	r.Attempts++
	return true
}

func (r *RestorationCounter) Reset() { r.Attempts = 0 }
