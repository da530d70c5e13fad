// Package stream pushes live check results to browser clients over
// WebSocket, one connection per subscriber, scoped to the caller's
// organization.
package stream

import (
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sitewatch/internal/auth"
	"sitewatch/internal/events"
)

// Hub bridges the in-process event bus to WebSocket clients.
type Hub struct {
	db       *sql.DB
	bus      *events.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a hub for live result streaming.
func NewHub(db *sql.DB, bus *events.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		db:     db,
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// HandleConnection upgrades the request and forwards the caller's
// organization events until the client disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	channel := events.OrgChannel(session.OrganizationID)
	sub := h.bus.Subscribe(channel)

	h.logger.Info("stream client connected",
		zap.Int64("org_id", session.OrganizationID))

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, sub, done)

	h.bus.Unsubscribe(channel, sub)
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()

	h.logger.Info("stream client disconnected",
		zap.Int64("org_id", session.OrganizationID))
}

// readLoop drains client messages so control frames are processed, and
// signals when the client goes away.
func (h *Hub) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(4 * 1024)
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

// writeLoop forwards bus events as JSON frames and pings to keep the
// connection alive.
func (h *Hub) writeLoop(conn *websocket.Conn, sub *events.Subscription, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll terminates every client connection at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second))
		conn.Close()
		delete(h.conns, conn)
	}
}
