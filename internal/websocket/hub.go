package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event names pushed to admin dashboards.
const (
	EventRunStarted          = "run_started"
	EventRunFinished         = "run_finished"
	EventRunFailed           = "run_failed"
	EventUserSuspended       = "user_suspended"
	EventUserNotified        = "user_notified"
	EventUserUpdated         = "user_updated"
	EventSubscriptionUpdated = "subscription_updated"
)

// Message is a single dashboard event.
type Message struct {
	Type  string    `json:"type"`
	RunID string    `json:"runId,omitempty"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

func NewMessage(event, runID string, data any) Message {
	return Message{
		Type:  event,
		RunID: runID,
		At:    time.Now().UTC(),
		Data:  data,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("dashboard connected", "clients", h.ClientCount())
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

// Broadcast sends a message to all connected clients. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many per-client deliveries were skipped.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
