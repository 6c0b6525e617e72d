package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/mqtt"
	"github.com/aerosense-io/aerosense-core/internal/store"
)

// commandQoS is the delivery level for device commands. Commands are
// user actions and must survive a flaky link, so they go at-least-once.
const commandQoS = 1

// MQTTClient is the broker surface the bridge needs. The infrastructure
// client satisfies it; tests substitute a fake.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// AlertEngine evaluates readings against the local notification policy.
type AlertEngine interface {
	// Classify returns the reading's threshold label
	// (normal, smoke, air_quality, critical).
	Classify(r Reading) string

	// Evaluate runs the full alert path for a reading. Best effort;
	// failures are the engine's to log, never the bridge's to handle.
	Evaluate(ctx context.Context, r Reading)
}

// Forwarder receives broker traffic for fan-out to interactive clients.
type Forwarder interface {
	Forward(deviceID string, channel string, payload []byte)
}

// Mirror receives readings for optional time-series storage.
type Mirror interface {
	WriteReading(deviceID string, fields map[string]float64, timestamp time.Time)
}

// Bridge is the single point where device publish/subscribe traffic
// meets the document store and interactive clients.
//
// Every devices/{id}/data message is parsed, persisted and handed to
// the alert engine synchronously in the broker handler; devices/{id}/res
// messages are fanned out verbatim to subscribed relay clients.
type Bridge struct {
	client MQTTClient
	store  store.Store
	alerts AlertEngine
	logger *logging.Logger
	topics mqtt.Topics
	now    func() time.Time

	// Optional collaborators, nil when disabled.
	forwarder Forwarder
	mirror    Mirror

	// lastSeen caches the newest timestamp persisted per device.
	// Broker delivery is at-least-once and unordered across devices,
	// so last-seen advances monotonic-max, never backward.
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New creates a Bridge. The mirror and forwarder may be nil.
func New(client MQTTClient, st store.Store, alerts AlertEngine, logger *logging.Logger) *Bridge {
	return &Bridge{
		client:   client,
		store:    st,
		alerts:   alerts,
		logger:   logger.With("component", "bridge"),
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// SetForwarder attaches the relay fan-out. Call before Start.
func (b *Bridge) SetForwarder(f Forwarder) {
	b.forwarder = f
}

// SetMirror attaches the time-series mirror. Call before Start.
func (b *Bridge) SetMirror(m Mirror) {
	b.mirror = m
}

// Start subscribes to the device telemetry and response topics.
// The underlying client restores these subscriptions on reconnect.
func (b *Bridge) Start() error {
	if err := b.client.Subscribe(b.topics.AllDeviceData(), 0, b.handleData); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	if err := b.client.Subscribe(b.topics.AllDeviceResponses(), 0, b.handleResponse); err != nil {
		return fmt.Errorf("subscribing to responses: %w", err)
	}

	b.logger.Info("bridge started",
		"data_topic", b.topics.AllDeviceData(),
		"response_topic", b.topics.AllDeviceResponses(),
	)
	return nil
}

// Connected reports the broker connection state. Loss of the broker
// never crashes the bridge; other components observe this flag instead.
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}

// PublishCommand re-publishes an interactive client's command to the
// device's command topic.
func (b *Bridge) PublishCommand(deviceID string, payload []byte) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	return b.client.Publish(b.topics.DeviceCommand(deviceID), payload, commandQoS, false)
}

// handleData is the ingestion path for devices/+/data.
//
// Malformed payloads are dropped and logged, never returned as errors
// that could tear down the subscription.
func (b *Bridge) handleData(topic string, payload []byte) error {
	reading, err := ParseReading(payload)
	if err != nil {
		b.logger.Warn("dropping unusable reading", "topic", topic, "error", err)
		return nil
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = b.now()
	}
	reading.Label = b.alerts.Classify(reading)

	ctx := context.Background()

	if err := b.touchLastSeen(ctx, reading); err != nil {
		b.logger.Error("updating last seen", "device_id", reading.DeviceID, "error", err)
	}

	if err := b.appendReading(ctx, reading); err != nil {
		b.logger.Error("persisting reading", "device_id", reading.DeviceID, "error", err)
	}

	b.alerts.Evaluate(ctx, reading)

	if b.mirror != nil {
		b.mirror.WriteReading(reading.DeviceID, map[string]float64{
			"co2":     reading.CO2,
			"nh3":     reading.NH3,
			"smoke":   reading.Smoke,
			"gas_raw": reading.GasRaw,
		}, reading.Timestamp)
	}

	if b.forwarder != nil {
		b.forwarder.Forward(reading.DeviceID, "data", payload)
	}

	return nil
}

// handleResponse fans devices/+/res payloads out to relay clients verbatim.
func (b *Bridge) handleResponse(topic string, payload []byte) error {
	deviceID, _, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		b.logger.Warn("dropping response on bad topic", "topic", topic, "error", err)
		return nil
	}

	if b.forwarder != nil {
		b.forwarder.Forward(deviceID, "res", payload)
	}
	return nil
}

// touchLastSeen advances the device's last-seen timestamp. Duplicate or
// out-of-order deliveries never move it backward.
func (b *Bridge) touchLastSeen(ctx context.Context, r Reading) error {
	b.mu.Lock()
	if !r.Timestamp.After(b.lastSeen[r.DeviceID]) {
		b.mu.Unlock()
		return nil
	}
	b.lastSeen[r.DeviceID] = r.Timestamp
	b.mu.Unlock()

	return b.store.Merge(ctx, "devices/"+r.DeviceID, store.Document{
		"last_seen": r.Timestamp,
	})
}

// appendReading persists one immutable reading document.
func (b *Bridge) appendReading(ctx context.Context, r Reading) error {
	_, err := b.store.Add(ctx, "devices/"+r.DeviceID+"/readings", store.Document{
		"device_id": r.DeviceID,
		"co2":       r.CO2,
		"nh3":       r.NH3,
		"smoke":     r.Smoke,
		"gas_raw":   r.GasRaw,
		"label":     r.Label,
		"timestamp": r.Timestamp,
	})
	return err
}
