package relay

import "encoding/json"

// Client actions.
const (
	ActionSubscribe = "subscribe"
	ActionPublish   = "publish"
)

// ClientMessage is what an interactive client sends over its connection.
//
// subscribe declares interest in one device; each connection tracks a
// single device and a later subscribe replaces the earlier one.
// publish asks the relay to forward an opaque command to the device.
type ClientMessage struct {
	Action   string          `json:"action"`
	DeviceID string          `json:"deviceId"`
	Payload  json.RawMessage `json:"payload,omitempty"`

	// Token is the caller's identity token, checked only when the
	// relay is configured to require auth.
	Token string `json:"token,omitempty"`
}

// ErrorMessage is the only enveloped frame the relay sends. Broker
// payloads for the subscribed device are forwarded verbatim, not wrapped.
type ErrorMessage struct {
	Error string `json:"error"`
}
