package store

import "errors"

// Sentinel errors for store operations, checkable with errors.Is().
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrInvalidPath indicates a path with the wrong number of segments
	// for the operation (documents need an even count, collections odd).
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)
