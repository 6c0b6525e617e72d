package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
)

// sendBufferSize is the per-client outbound message buffer.
const sendBufferSize = 256

// authTimeout bounds the token verification call inside a subscribe.
const authTimeout = 10 * time.Second

// Client is one interactive client connection.
//
// Each connection tracks exactly one subscribed device at a time; a new
// subscribe replaces the previous registration.
type Client struct {
	id     string
	server *Server
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	mu       sync.RWMutex
	deviceID string
}

// readPump reads client messages until the connection drops.
func (c *Client) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("relay read error", "error", err)
			} else {
				c.hub.logger.Debug("relay connection closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes outbound payloads and protocol pings.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound client frame.
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid JSON message")
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		c.handleSubscribe(msg)
	case ActionPublish:
		c.handlePublish(msg)
	default:
		c.sendError("unknown action: " + msg.Action)
	}
}

// handleSubscribe points this connection at a device. Last subscribe wins.
func (c *Client) handleSubscribe(msg ClientMessage) {
	if msg.DeviceID == "" {
		c.sendError("deviceId is required")
		return
	}

	if c.server.cfg.RequireAuth {
		if err := c.authorize(msg); err != nil {
			c.sendError(err.Error())
			return
		}
	}

	c.mu.Lock()
	c.deviceID = msg.DeviceID
	c.mu.Unlock()

	c.hub.logger.Info("relay client subscribed", "client_id", c.id, "device_id", msg.DeviceID)
}

// handlePublish forwards an opaque command to the device's command topic.
func (c *Client) handlePublish(msg ClientMessage) {
	if msg.DeviceID == "" {
		c.sendError("deviceId is required")
		return
	}
	if len(msg.Payload) == 0 {
		c.sendError("payload is required")
		return
	}

	if err := c.server.publisher.PublishCommand(msg.DeviceID, msg.Payload); err != nil {
		c.hub.logger.Warn("command publish failed", "device_id", msg.DeviceID, "error", err)
		c.sendError("publish failed")
	}
}

// authorize verifies the caller's token and checks its device link.
func (c *Client) authorize(msg ClientMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	account, err := c.server.verifier.Verify(ctx, msg.Token)
	if err != nil {
		return errUnauthorized
	}

	linked, err := c.server.access.HasLink(ctx, msg.DeviceID, account.ID)
	if err != nil || !linked {
		return errNotLinked
	}
	return nil
}

// subscribedTo reports whether this connection is watching the device.
func (c *Client) subscribedTo(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID == deviceID
}

// trySend attempts to queue data for the client. Closed channels
// (client disconnected during fan-out) and full buffers are absorbed.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendError sends an enveloped error frame to the client.
func (c *Client) sendError(message string) {
	data, err := json.Marshal(ErrorMessage{Error: message})
	if err != nil {
		return
	}
	c.trySend(data)
}
