package relay

import (
	"context"
	"sync"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
)

// Hub tracks connected interactive clients and fans broker traffic out
// to whichever client is subscribed to the message's device.
type Hub struct {
	logger  *logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "relay"),
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("relay client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub and tears down its
// forwarding registration.
// Only the goroutine that removes the client from the map closes the
// send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("relay client disconnected", "clients", h.ClientCount())
}

// Forward delivers a broker payload verbatim to every client subscribed
// to the device. Implements the bridge's Forwarder.
func (h *Hub) Forward(deviceID string, channel string, payload []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.subscribedTo(deviceID) {
			client.trySend(payload)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("forwarded broker message",
			"device_id", deviceID,
			"channel", channel,
			"recipients", sent,
		)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
