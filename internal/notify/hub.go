// Package notify implements the playback/ingestion notifier (C9): a
// WebSocket fan-out hub keyed by user id with per-device connection ids.
// Delivery is best-effort — serialization and delivery errors are logged
// and swallowed, never propagated to callers.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pezzottify/catalog-engine/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{ //nolint:gochecknoglobals // Stateless, shared across connections per gorilla/websocket's own idiom.
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// connection is one subscribed device for a user.
type connection struct {
	id   string
	conn *websocket.Conn
	send chan Envelope
}

// Hub fans broadcast messages out to every connection registered for a
// user, and catalog-wide events out to every connected user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]*connection // userID -> connID -> connection
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[string]*connection)}
}

// Upgrade upgrades an incoming HTTP request to a WebSocket connection,
// registers it under userID, and runs its write pump until the connection
// closes. It blocks until the connection ends, so callers should invoke it
// from the request-handling goroutine.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, userID string) error {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connID := uuid.NewString()
	conn := &connection{id: connID, conn: wsConn, send: make(chan Envelope, sendBufferSize)}

	h.register(userID, conn)
	defer h.unregister(userID, connID)

	closed := make(chan struct{})
	go readPump(wsConn, closed)

	h.writePump(r.Context(), conn, closed)

	return nil
}

// readPump discards incoming frames — this hub is send-only to clients —
// but it must still read the connection so gorilla/websocket processes
// control frames and so the hub notices the client disconnecting.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(userID string, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*connection)
	}

	h.clients[userID][conn.id] = conn
}

func (h *Hub) unregister(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[userID]
	if !ok {
		return
	}

	if conn, exists := conns[connID]; exists {
		close(conn.send)
		delete(conns, connID)
	}

	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

// writePump drains conn.send and writes each envelope as a JSON text
// message until the channel closes or the connection's context is done.
func (h *Hub) writePump(ctx context.Context, conn *connection, closed <-chan struct{}) {
	defer conn.conn.Close() //nolint:errcheck // Best-effort close; nothing actionable on error.

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case envelope, ok := <-conn.send:
			if !ok {
				return
			}

			if err := h.writeEnvelope(conn, envelope); err != nil {
				logger.Warnf(ctx, "notify: write to connection %s failed: %v", conn.id, err)
				return
			}
		}
	}
}

func (h *Hub) writeEnvelope(conn *connection, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_ = conn.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return conn.conn.WriteMessage(websocket.TextMessage, data)
}

// BroadcastToUser delivers envelope to every connection registered for
// userID. Missing user or full/closed connection buffers are logged and
// swallowed, never returned as an error — delivery here is always
// best-effort per spec §4.9.
func (h *Hub) BroadcastToUser(ctx context.Context, userID string, envelope Envelope) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.clients[userID]))
	for _, conn := range h.clients[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		logger.Debugf(ctx, "notify: no connections for user %s, dropping %s", userID, envelope.Type)
		return
	}

	for _, conn := range conns {
		h.deliver(ctx, conn, envelope)
	}
}

// BroadcastAll delivers envelope to every connected user — used for
// catalog-wide invalidation events.
func (h *Hub) BroadcastAll(ctx context.Context, envelope Envelope) {
	h.mu.RLock()
	var conns []*connection

	for _, userConns := range h.clients {
		for _, conn := range userConns {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.deliver(ctx, conn, envelope)
	}
}

func (h *Hub) deliver(ctx context.Context, conn *connection, envelope Envelope) {
	// unregister may close conn.send after the caller took its snapshot; the
	// resulting send-on-closed-channel panic is recovered and logged.
	defer func() {
		if recover() != nil {
			logger.Warnf(ctx, "notify: connection %s closed, dropping %s", conn.id, envelope.Type)
		}
	}()

	select {
	case conn.send <- envelope:
	default:
		logger.Warnf(ctx, "notify: send buffer full for connection %s, dropping %s", conn.id, envelope.Type)
	}
}
