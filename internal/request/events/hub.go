// Package events fans request changes out to connected dashboards over
// server-sent events.
package events

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	TypeRequestCreated = "request_created"
	TypeStatusChanged  = "request_status"
)

// Event is one server-sent event.
type Event struct {
	Type string `json:"event"`
	Data string `json:"data"`
}

// Client is one connected stream.
type Client struct {
	ID     string
	Email  string
	Events chan Event
}

// Hub tracks connected clients. A client whose buffer is full misses the
// event rather than blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register adds a client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("Event stream opened", zap.String("client", client.ID), zap.String("email", client.Email), zap.Int("total", len(h.clients)))
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("Event stream closed", zap.String("client", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event to every client.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("Event stream buffer full, skipping event", zap.String("client", client.ID), zap.String("event", event.Type))
		}
	}
}

// Publish encodes payload as JSON and broadcasts it.
func (h *Hub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("Encode event failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.Broadcast(Event{Type: eventType, Data: string(data)})
}

// RequestChange is the payload of both event types.
type RequestChange struct {
	Ticket string `json:"ticket_id"`
	From   string `json:"from,omitempty"`
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
}
