package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 << 10
)

// RelayHandler upgrades /ws/rooms/{room}?participant=name to a WebSocket and attaches it to a [relay.Hub].
//
// Every text frame from the client is decoded and routed through the hub; every event the hub queues for
// the member is encoded and written back.
type RelayHandler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewRelayHandler creates a handler serving hub.
func NewRelayHandler(hub *relay.Hub, logger *log.Logger) *RelayHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RelayHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: shared.WithLogger(logger, "component", "relay-server"),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *RelayHandler) Routes() []string {
	return []string{"/ws/rooms/{room}"}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := models.Session{Room: chi.URLParam(r, "room"), Participant: r.URL.Query().Get("participant")}
	if err := session.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "room", session.Room, "participant", session.Participant, "error", err)
		return
	}

	member := h.hub.Join(session)
	written := make(chan struct{})
	go h.write(conn, member, written)

	h.read(r.Context(), conn, member)
	member.Close()
	<-written
}

// read routes client frames until the connection fails or the member leaves.
func (h *RelayHandler) read(ctx context.Context, conn *websocket.Conn, member *relay.Member) {
	logger := h.logger.With("participant", member.Session().Participant, "room", member.Session().Room)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("connection lost", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		evt, err := relay.Decode(data)
		if err != nil {
			logger.Warn("dropping frame", "error", err)
			continue
		}
		if err := member.Publish(ctx, evt); err != nil {
			return
		}
	}
}

// write drains the member's queue onto the connection and keeps it alive with pings.
func (h *RelayHandler) write(conn *websocket.Conn, member *relay.Member, written chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(written)
	}()

	for {
		select {
		case evt := <-member.Events():
			data, err := relay.Encode(evt)
			if err != nil {
				h.logger.Error("failed to encode event", "type", evt.Type, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				member.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				member.Close()
				return
			}
		case <-member.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// HealthHandler reports liveness and the number of active rooms.
type HealthHandler struct {
	hub *relay.Hub
}

// NewHealthHandler creates a handler reporting on hub.
func NewHealthHandler(hub *relay.Hub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

// Routes returns the HTTP routes this handler serves.
func (h *HealthHandler) Routes() []string {
	return []string{"/health"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "rooms": h.hub.Rooms()})
}
