package relay

import "github.com/desertthunder/jamroom/internal/models"

// EventType names a relay event on the wire.
type EventType string

const (
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventSongPlay     EventType = "song_play"
	EventSongUpdate   EventType = "song_update"
	EventSongPlaySync EventType = "song_play_sync"
	EventSyncPlayback EventType = "sync_playback"
	EventSyncRequest  EventType = "sync_request"
	EventRoomMessage  EventType = "room_message"
)

// ExcludesSender reports whether fan-out for this type skips the publisher.
func (t EventType) ExcludesSender() bool {
	switch t {
	case EventSongPlay, EventSongUpdate, EventSongPlaySync, EventSyncPlayback, EventSyncRequest:
		return true
	}
	return false
}

// Presence is the join/leave payload.
type Presence struct {
	Participant string `json:"username" validate:"required,max=64"`
}

// SongPlay announces a newly selected track.
type SongPlay struct {
	Song       models.TrackRef `json:"song"`
	PositionMs int             `json:"position_ms" validate:"min=0"`
}

// PlaybackReport describes a source's current playback for pause and seek deltas.
type PlaybackReport struct {
	Paused     bool            `json:"is_paused"`
	TrackURI   string          `json:"track_uri" validate:"required"`
	PositionMs int             `json:"position_ms" validate:"min=0"`
	DurationMs int             `json:"duration_ms" validate:"min=0"`
	TrackInfo  models.TrackRef `json:"track_info"`
}

// SongUpdate wraps a [PlaybackReport].
type SongUpdate struct {
	State PlaybackReport `json:"state"`
}

// RoomMessage is a relay-generated notice such as a membership change.
type RoomMessage struct {
	Msg       string `json:"msg"`
	Listeners int    `json:"listeners" validate:"min=0"`
}

// Event is a decoded relay frame. Exactly one payload pointer is set, matching Type;
// sync requests carry none.
type Event struct {
	Type     EventType
	Room     string
	Sender   string
	Presence *Presence
	Play     *SongPlay
	Update   *SongUpdate
	Message  *RoomMessage
}

// SyncState is the playback a sync event asks listeners to converge on.
type SyncState struct {
	Track      models.TrackRef
	PositionMs int
	Paused     bool
	// HasPaused is false for song_play events, which carry no paused flag.
	HasPaused bool
}

// IsSync reports whether the event is one listeners act on.
func (e Event) IsSync() bool {
	return e.Type == EventSongPlaySync || e.Type == EventSyncPlayback
}

// Sync extracts the target playback from a play or update event.
func (e Event) Sync() (SyncState, bool) {
	switch e.Type {
	case EventSongPlay, EventSongPlaySync:
		if e.Play == nil {
			return SyncState{}, false
		}
		return SyncState{Track: e.Play.Song, PositionMs: e.Play.PositionMs}, true
	case EventSongUpdate, EventSyncPlayback:
		if e.Update == nil {
			return SyncState{}, false
		}
		s := e.Update.State
		track := s.TrackInfo
		track.ID = s.TrackURI
		if track.DurationMs == 0 {
			track.DurationMs = s.DurationMs
		}
		return SyncState{Track: track, PositionMs: s.PositionMs, Paused: s.Paused, HasPaused: true}, true
	}
	return SyncState{}, false
}

// Mirror converts a client publish into the event peers receive.
func Mirror(e Event) Event {
	switch e.Type {
	case EventSongPlay:
		e.Type = EventSongPlaySync
	case EventSongUpdate:
		e.Type = EventSyncPlayback
	}
	return e
}

// NewJoin announces the session's participant to the room.
func NewJoin(s models.Session) Event {
	return Event{Type: EventJoin, Room: s.Room, Sender: s.Participant, Presence: &Presence{Participant: s.Participant}}
}

// NewLeave announces the participant's departure.
func NewLeave(s models.Session) Event {
	return Event{Type: EventLeave, Room: s.Room, Sender: s.Participant, Presence: &Presence{Participant: s.Participant}}
}

// NewSongPlay builds a song_play for track at positionMs.
func NewSongPlay(s models.Session, track models.TrackRef, positionMs int) Event {
	return Event{
		Type:   EventSongPlay,
		Room:   s.Room,
		Sender: s.Participant,
		Play:   &SongPlay{Song: track, PositionMs: positionMs},
	}
}

// NewSongUpdate builds a song_update reporting state for track.
func NewSongUpdate(s models.Session, track models.TrackRef, paused bool, positionMs int) Event {
	return Event{
		Type:   EventSongUpdate,
		Room:   s.Room,
		Sender: s.Participant,
		Update: &SongUpdate{State: PlaybackReport{
			Paused:     paused,
			TrackURI:   track.ID,
			PositionMs: positionMs,
			DurationMs: track.DurationMs,
			TrackInfo:  track,
		}},
	}
}

// NewSyncRequest asks the room's source to report its state.
func NewSyncRequest(s models.Session) Event {
	return Event{Type: EventSyncRequest, Room: s.Room, Sender: s.Participant}
}

// NewRoomMessage builds a relay notice for room.
func NewRoomMessage(room, msg string, listeners int) Event {
	return Event{Type: EventRoomMessage, Room: room, Message: &RoomMessage{Msg: msg, Listeners: listeners}}
}
