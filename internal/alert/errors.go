package alert

import "errors"

// Sentinel errors for alert operations, checkable with errors.Is().
var (
	// ErrInvalidSensitivity indicates a sensitivity outside ALL/CRITICAL.
	ErrInvalidSensitivity = errors.New("alert: invalid sensitivity")
)
