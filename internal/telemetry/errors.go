package telemetry

import "errors"

// Sentinel errors for telemetry ingestion, checkable with errors.Is().
var (
	// ErrMissingDeviceID indicates a payload with no device_id field.
	// Such readings cannot be attributed and are dropped.
	ErrMissingDeviceID = errors.New("telemetry: missing device id")

	// ErrMalformedPayload indicates a payload that is not a JSON object.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")

	// ErrNotConnected indicates the broker connection is down.
	ErrNotConnected = errors.New("telemetry: broker not connected")
)
