// Package websocket - WebSocket transport for the realtime core.
// Upgrades authenticated connections, reads the inbound command stream and
// hands each frame to the dispatcher.
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"classhub/pkg/models"
)

// Constants for performance and limits
const (
	maxMessageSize = 64 * 1024            // OT batches carry document text
	writeWait      = 10 * time.Second     // Time allowed to write a message
	pongWait       = 60 * time.Second     // Time allowed to read the next pong
	pingPeriod     = (pongWait * 9) / 10  // Send pings to client
	sendBufferSize = 256                  // Outbound frames queued per socket

	// Consecutive rate-limited frames tolerated before the socket is
	// closed for abuse.
	maxRateViolations = 100
)

// envelope is the wire frame in both directions: a named event plus its
// JSON payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsSocket adapts one gorilla connection to realtime.Socket. Emit never
// blocks: frames queue on the send channel and a persistently full buffer
// drops the connection.
type wsSocket struct {
	id   string
	conn *websocket.Conn

	send chan envelope
	done chan struct{}

	closeOnce sync.Once
}

func newSocket(conn *websocket.Conn) *wsSocket {
	return &wsSocket{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID identifies the socket for the lifetime of the connection.
func (s *wsSocket) ID() string { return s.id }

// Emit queues a named event for delivery. A full send buffer closes the
// socket; the slow consumer reconnects and re-joins.
func (s *wsSocket) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	select {
	case <-s.done:
		return fmt.Errorf("socket %s closed", s.id)
	default:
	}

	select {
	case s.send <- envelope{Type: event, Data: data}:
		return nil
	default:
		logrus.Warnf("socket %s send buffer full, disconnecting", s.id)
		s.Close()
		return fmt.Errorf("socket %s send buffer full", s.id)
	}
}

// closeWithError sends a close frame carrying the error's websocket close
// code before tearing the transport down.
func (s *wsSocket) closeWithError(appErr *models.AppError) {
	code, msg := appErr.ToWebSocketError()
	deadline := time.Now().Add(writeWait)
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, msg), deadline)
	s.Close()
}

// Close tears the transport down. Safe to call from any goroutine and more
// than once.
func (s *wsSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.conn.Close()
}

// writePump drains the send channel onto the connection and keeps the
// client alive with periodic pings. Runs as one goroutine per socket.
func (s *wsSocket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(frame)
			if err != nil {
				logrus.Errorf("socket %s: marshal frame: %v", s.id, err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
