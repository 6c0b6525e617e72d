package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reading is one telemetry sample from a device. Readings are
// append-only: never updated, only appended and bulk-deleted on wipe.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	CO2       float64   `json:"co2"`
	NH3       float64   `json:"nh3"`
	Smoke     float64   `json:"smoke"`
	GasRaw    float64   `json:"gas_raw"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseReading decodes a devices/{id}/data payload.
//
// Device firmware is the least reliable producer in the system, so
// parsing is deliberately lenient: missing or malformed numeric fields
// become zero. Only two conditions reject the whole message: a payload
// that is not a JSON object, and a missing device_id, which makes the
// reading unattributable.
func ParseReading(payload []byte) (Reading, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	deviceID, _ := raw["device_id"].(string)
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Reading{}, ErrMissingDeviceID
	}

	return Reading{
		DeviceID:  deviceID,
		CO2:       numericField(raw, "co2"),
		NH3:       numericField(raw, "nh3"),
		Smoke:     numericField(raw, "smoke"),
		GasRaw:    numericField(raw, "gas_raw"),
		Timestamp: timestampField(raw, "timestamp"),
	}, nil
}

// numericField coerces a JSON value to float64, defaulting to zero for
// missing or non-numeric values.
func numericField(raw map[string]any, field string) float64 {
	switch v := raw[field].(type) {
	case float64:
		return v
	case string:
		// Some firmware revisions quote their numbers.
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

// timestampField accepts unix seconds or RFC 3339. A missing or
// unparseable timestamp returns the zero time; the bridge stamps those
// at ingestion.
func timestampField(raw map[string]any, field string) time.Time {
	switch v := raw[field].(type) {
	case float64:
		if v <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(v), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}
