package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout = 5 * time.Second
	wsWriteDeadline    = 5 * time.Second
	wsPingInterval     = 15 * time.Second
	wsMaxMessageSize   = 16 << 10
	wsSendBuffer       = 32
)

// WebSocketRelay talks to a jamroom relay server over a single WebSocket connection.
//
// Outbound frames are queued and written by one writer goroutine, which also sends keepalive pings.
// The server applies sender exclusion and produces room messages.
type WebSocketRelay struct {
	conn    *websocket.Conn
	session models.Session
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	logger  *log.Logger
}

// RoomURL builds the relay server endpoint for session from a base such as ws://host:4444.
func RoomURL(base string, session models.Session) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: relay url: %v", shared.ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: relay url scheme %q", shared.ErrInvalidConfig, u.Scheme)
	}
	u.Path += "/ws/rooms/" + url.PathEscape(session.Room)
	u.RawQuery = url.Values{"participant": {session.Participant}}.Encode()
	return u.String(), nil
}

// DialWebSocket connects session to the relay server at base.
func DialWebSocket(ctx context.Context, base string, session models.Session, logger *log.Logger) (*WebSocketRelay, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	target, err := RoomURL(base, session)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", shared.ErrServiceUnavailable, target, err)
	}
	conn.SetReadLimit(wsMaxMessageSize)

	r := &WebSocketRelay{
		conn:    conn,
		session: session,
		send:    make(chan []byte, wsSendBuffer),
		done:    make(chan struct{}),
		logger:  shared.WithLogger(logger, "component", "relay", "transport", "websocket"),
	}
	go r.writePump()
	return r, nil
}

// Publish queues evt for the writer.
func (r *WebSocketRelay) Publish(ctx context.Context, evt Event) error {
	evt.Room = r.session.Room
	evt.Sender = r.session.Participant

	data, err := Encode(evt)
	if err != nil {
		return err
	}

	select {
	case r.send <- data:
		return nil
	case <-r.done:
		return shared.ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen reads frames until the connection closes or ctx is cancelled. Malformed frames are logged and skipped.
func (r *WebSocketRelay) Listen(ctx context.Context, fn Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
				return nil
			default:
			}
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: %v", shared.ErrRelayClosed, err)
		}

		evt, err := Decode(data)
		if err != nil {
			r.logger.Warn("dropping inbound frame", "error", err)
			continue
		}
		fn(evt)
	}
}

// Close stops the writer, which sends a close frame and closes the connection.
func (r *WebSocketRelay) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}

func (r *WebSocketRelay) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		r.conn.Close()
	}()

	for {
		select {
		case data := <-r.send:
			r.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				r.logger.Error("failed to write frame", "error", err)
				r.Close()
				return
			}
		case <-ticker.C:
			if err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteDeadline)); err != nil {
				r.logger.Warn("failed to send ping", "error", err)
			}
		case <-r.done:
			r.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving")
			if err := r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteDeadline)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				r.logger.Debug("failed to send close frame", "error", err)
			}
			return
		}
	}
}

// flush writes frames queued before Close, such as a final leave.
func (r *WebSocketRelay) flush() {
	for {
		select {
		case data := <-r.send:
			r.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
