package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a realtime notification pushed to a couple's clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per couple and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	couples map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		couples: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to its couple's channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.couples[c.coupleID]
	if !ok {
		set = make(map[*Client]struct{})
		h.couples[c.coupleID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.couples[c.coupleID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.couples, c.coupleID)
	}
}

// Broadcast sends msg to every client connected for coupleID.
func (h *Hub) Broadcast(coupleID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.couples[coupleID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping message", "couple_id", coupleID, "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients across all couples.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.couples {
		n += len(set)
	}
	return n
}

// CoupleClientCount returns the number of clients connected for coupleID.
func (h *Hub) CoupleClientCount(coupleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.couples[coupleID])
}
