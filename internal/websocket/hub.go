// Package websocket pushes device events (sync status, family and phrase
// changes) to the local UI.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event entities.
const (
	EntitySync   = "sync"
	EntityFamily = "family"
	EntityMember = "member"
	EntityPhrase = "phrase"
	EntityQueue  = "queue"
)

// Event is a notification broadcast to every connected UI.
type Event struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewEvent creates an Event whose Type is entity_action.
func NewEvent(entity, action, id string, data any) Event {
	return Event{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
// The latest event of each sticky entity is replayed to clients as they
// connect, so a fresh UI sees the current sync status without asking.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	sticky  map[string]bool
	last    map[string][]byte
	logger  *slog.Logger
}

// NewHub creates a Hub. Events for the named entities are retained for replay.
func NewHub(logger *slog.Logger, sticky ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[*Client]struct{}),
		sticky:  make(map[string]bool, len(sticky)),
		last:    make(map[string][]byte),
		logger:  logger.With("component", "websocket"),
	}
	for _, e := range sticky {
		h.sticky[e] = true
	}
	return h
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	for _, data := range h.last {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to all connected clients. Clients whose buffer is
// full miss the event.
func (h *Hub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	if h.sticky[e.Entity] {
		h.last[e.Entity] = data
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
