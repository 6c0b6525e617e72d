// Package mqtt wraps the Eclipse Paho MQTT client for the AeroSense relay.
//
// The relay holds the only broker credentials in the system; devices and
// the relay meet on a fixed topic namespace:
//
//	devices/{id}/data  telemetry readings, published by the device
//	devices/{id}/cmd   commands, published by the relay on behalf of clients
//	devices/{id}/res   command responses, published by the device
//
// The wrapper adds connection management with automatic reconnection,
// subscription tracking so clean-session reconnects restore topic handlers
// before message processing resumes, panic-safe handler dispatch, and
// sentinel errors for errors.Is checks.
package mqtt
