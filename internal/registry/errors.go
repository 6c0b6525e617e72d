package registry

import "errors"

// Sentinel errors for registry operations, checkable with errors.Is().
var (
	// ErrUnauthenticated indicates no authenticated account was supplied.
	// Every operation fails closed on this before touching the store.
	ErrUnauthenticated = errors.New("registry: unauthenticated")

	// ErrInvalidDeviceID indicates an empty or malformed device ID.
	ErrInvalidDeviceID = errors.New("registry: invalid device id")

	// ErrInvalidName indicates an empty display name.
	ErrInvalidName = errors.New("registry: invalid name")

	// ErrInvalidShareCode indicates the share code is empty or matches
	// no claimed device.
	ErrInvalidShareCode = errors.New("registry: invalid share code")

	// ErrAlreadyClaimed indicates the device has a different administrator.
	ErrAlreadyClaimed = errors.New("registry: device already claimed")

	// ErrNotLinked indicates the account has no link to the device.
	ErrNotLinked = errors.New("registry: account not linked to device")

	// ErrNotFound indicates the device record does not exist.
	ErrNotFound = errors.New("registry: device not found")
)
