package relay

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/go-playground/validator/v10"
)

// envelope is the JSON frame shared by every relay transport.
type envelope struct {
	Type    EventType       `json:"type" validate:"required,oneof=join leave song_play song_update song_play_sync sync_playback sync_request room_message"`
	Room    string          `json:"room_key" validate:"required,max=128"`
	Sender  string          `json:"sender,omitempty" validate:"max=64"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalid wraps err as [shared.ErrInvalidSyncPayload], flattening validator output into field names.
func invalid(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", shared.ErrInvalidSyncPayload, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", shared.ErrInvalidSyncPayload, err)
}

// payload returns the struct carried by e, or nil for payload-less types.
func (e Event) payload() (any, error) {
	var p any
	switch e.Type {
	case EventJoin, EventLeave:
		if e.Presence != nil {
			p = e.Presence
		}
	case EventSongPlay, EventSongPlaySync:
		if e.Play != nil {
			p = e.Play
		}
	case EventSongUpdate, EventSyncPlayback:
		if e.Update != nil {
			u := *e.Update
			if u.State.TrackInfo.ID == "" {
				u.State.TrackInfo.ID = u.State.TrackURI
			}
			p = &u
		}
	case EventRoomMessage:
		if e.Message != nil {
			p = e.Message
		}
	case EventSyncRequest:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: missing payload", e.Type)
	}
	return p, nil
}

// Encode validates e and serializes it as an envelope.
func Encode(e Event) ([]byte, error) {
	p, err := e.payload()
	if err != nil {
		return nil, invalid(err)
	}

	env := envelope{Type: e.Type, Room: e.Room, Sender: e.Sender}
	if err := validate.Struct(env); err != nil {
		return nil, invalid(err)
	}

	if p != nil {
		if err := validate.Struct(p); err != nil {
			return nil, invalid(err)
		}
		if env.Payload, err = json.Marshal(p); err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
		}
	}
	return json.Marshal(env)
}

// Decode parses and validates a frame. Every failure wraps [shared.ErrInvalidSyncPayload].
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, invalid(err)
	}
	if err := validate.Struct(env); err != nil {
		return Event{}, invalid(err)
	}

	e := Event{Type: env.Type, Room: env.Room, Sender: env.Sender}
	var target any
	switch env.Type {
	case EventJoin, EventLeave:
		e.Presence = &Presence{}
		target = e.Presence
	case EventSongPlay, EventSongPlaySync:
		e.Play = &SongPlay{}
		target = e.Play
	case EventSongUpdate, EventSyncPlayback:
		e.Update = &SongUpdate{}
		target = e.Update
	case EventRoomMessage:
		e.Message = &RoomMessage{}
		target = e.Message
	case EventSyncRequest:
		return e, nil
	}

	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return Event{}, invalid(fmt.Errorf("%s: missing payload", env.Type))
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return Event{}, invalid(err)
	}
	if e.Update != nil && e.Update.State.TrackInfo.ID == "" {
		e.Update.State.TrackInfo.ID = e.Update.State.TrackURI
	}
	if err := validate.Struct(target); err != nil {
		return Event{}, invalid(err)
	}
	return e, nil
}
