package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"memberdir/internal/middleware"
	"memberdir/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
)

// Hub maps user id to that user's live clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uuid.UUID]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uuid.UUID]map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "directory hub" }

// Register adds a connection for userID. conn may be nil in tests.
func (h *Hub) Register(userID uuid.UUID, sessionID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	client := NewClient(h, conn, userID, sessionID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient removes client and closes its send queue. Safe to call
// more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	close(client.Send)
	h.totalConns--
	observability.WebSocketConnections.Dec()
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Broadcast sends message to all connections for userID.
func (h *Hub) Broadcast(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(message)
	}
}

// BroadcastSession sends message to userID's connections for sessionID, or
// to all of them when sessionID is empty.
func (h *Hub) BroadcastSession(userID uuid.UUID, sessionID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		if sessionID == "" || c.SessionID == sessionID {
			c.TrySend(message)
		}
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(message)
		}
	}
}

// Connections returns the number of open connections, for userID only when
// it is not uuid.Nil.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userID == uuid.Nil {
		return h.totalConns
	}
	return len(h.conns[userID])
}

// StartWiring connects the Notifier to this hub: per-user messages go to that
// user's connections and directory changes go to onChange.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier, onChange func(payload []byte)) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == ChangesChannel {
			if onChange != nil {
				onChange([]byte(payload))
			}
			return
		}
		userID, ok := UserFromChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		var target struct {
			SessionID string `json:"session_id"`
		}
		_ = json.Unmarshal([]byte(payload), &target)
		h.BroadcastSession(userID, target.SessionID, []byte(payload))
	})
}

// Shutdown closes every client's queue; each WritePump then sends a
// going-away frame and closes its connection.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, userConns := range h.conns {
		for client := range userConns {
			close(client.Send)
			observability.WebSocketConnections.Dec()
		}
	}
	h.conns = make(map[uuid.UUID]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
