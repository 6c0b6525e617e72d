package provision

import "errors"

// FailureDeviceNotFound is the user-facing reason when no matching
// peripheral advertises within the scan window. The wording is part of
// the mobile client contract.
const FailureDeviceNotFound = "Device Not Found. Is it in setup mode?"

// Sentinel errors for provisioning sessions, checkable with errors.Is().
var (
	// ErrDeviceNotFound indicates the scan window elapsed with no match.
	ErrDeviceNotFound = errors.New("provision: device not found")

	// ErrInvalidDevice indicates the peripheral lacks the provisioning
	// service.
	ErrInvalidDevice = errors.New("provision: invalid device")

	// ErrWriteFailed indicates a credential write was not acknowledged.
	ErrWriteFailed = errors.New("provision: write failed")

	// ErrClosed indicates the session was cancelled.
	ErrClosed = errors.New("provision: session closed")

	// ErrAlreadyStarted indicates Start was called twice on one session.
	ErrAlreadyStarted = errors.New("provision: session already started")
)
