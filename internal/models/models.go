// package models defines the data model shared by the room client and relay
package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackRef identifies a playable track together with the metadata needed to render it.
//
// ID is opaque to everything except the control surface; for Spotify it is the track URI.
type TrackRef struct {
	ID         string `json:"uri" validate:"required"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Artwork    string `json:"artwork,omitempty"`
	Album      string `json:"album,omitempty"`
	DurationMs int    `json:"duration" validate:"min=0"`
}

// Same reports whether two refs point at the same track.
func (t TrackRef) Same(other *TrackRef) bool {
	return other != nil && t.ID == other.ID
}

// Described reports whether the ref carries display metadata beyond its ID.
func (t TrackRef) Described() bool {
	return t.Title != ""
}

func (t TrackRef) String() string {
	switch {
	case t.Title == "":
		return t.ID
	case t.Artist == "":
		return t.Title
	default:
		return t.Artist + " - " + t.Title
	}
}

// Session scopes a participant to a room. It is immutable once joined.
type Session struct {
	Room        string
	Participant string
}

// Validate checks that both the room and participant are set.
func (s Session) Validate() error {
	if strings.TrimSpace(s.Room) == "" {
		return fmt.Errorf("session: room is required")
	}
	if strings.TrimSpace(s.Participant) == "" {
		return fmt.Errorf("session: participant is required")
	}
	return nil
}

// Role is the local participant's stance in the room.
//
// Roles are not globally exclusive: two participants may both hold [RoleSource]
// after racing track selections, and listeners converge on whichever
// broadcast reaches them last.
type Role int

const (
	RoleListener Role = iota
	RoleSource
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleListener:
		return "listener"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// PlaybackState is the coordinator's view of local playback.
type PlaybackState struct {
	Track       *TrackRef
	Paused      bool
	PositionMs  int
	LastUpdated time.Time
}

// Empty reports whether no track is loaded.
func (p PlaybackState) Empty() bool {
	return p.Track == nil
}

// EstimatedPosition extrapolates the position to now while playing, clamped to the track duration.
func (p PlaybackState) EstimatedPosition(now time.Time) int {
	pos := p.PositionMs
	if !p.Paused && p.Track != nil && !p.LastUpdated.IsZero() {
		if elapsed := now.Sub(p.LastUpdated); elapsed > 0 {
			pos += int(elapsed / time.Millisecond)
		}
	}
	if p.Track != nil && p.Track.DurationMs > 0 && pos > p.Track.DurationMs {
		pos = p.Track.DurationMs
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// DeviceState is what the playback device reports about itself. A nil *DeviceState means nothing is loaded.
type DeviceState struct {
	Track      *TrackRef
	Paused     bool
	PositionMs int
	DurationMs int
	DeviceID   string
	DeviceName string
	Volume     int
}

// Device is a playback target the control surface can address.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"is_active"`
	Volume int    `json:"volume_percent"`
}

// Play is one entry in the local play log.
type Play struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	Track    TrackRef  `json:"track"`
	Origin   string    `json:"origin"`
	PlayedAt time.Time `json:"played_at"`
}
