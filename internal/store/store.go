package store

import "context"

// Document is a single document's fields.
type Document map[string]any

// Entry is a document returned from a collection read, paired with its ID.
type Entry struct {
	ID  string
	Doc Document
}

// WriteOp identifies the kind of write in a batch.
type WriteOp int

const (
	// OpSet replaces the document at Path with Doc.
	OpSet WriteOp = iota

	// OpMerge upserts Doc into the document at Path, preserving
	// fields not present in Doc.
	OpMerge

	// OpDelete removes the document at Path.
	OpDelete
)

// Write is one operation in an atomic batch passed to Apply.
type Write struct {
	Op   WriteOp
	Path string
	Doc  Document
}

// EventType identifies the kind of change delivered by Watch.
type EventType int

const (
	// EventAdded indicates a document appeared in the collection.
	EventAdded EventType = iota

	// EventModified indicates an existing document changed.
	EventModified

	// EventRemoved indicates a document was deleted.
	EventRemoved
)

// Event is a single change delivered by Watch.
type Event struct {
	Type EventType
	ID   string
	Doc  Document
}

// Store is the hosted document store consumed by the registry and the
// telemetry bridge. Paths are slash-separated: document paths have an
// even number of segments ("devices/abc123"), collection paths an odd
// number ("devices/abc123/readings").
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)

	// Set replaces the document at path, creating it if absent.
	Set(ctx context.Context, path string, doc Document) error

	// Merge upserts doc into the document at path, preserving fields
	// not named in doc.
	Merge(ctx context.Context, path string, doc Document) error

	// Delete removes the document at path. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, path string) error

	// Add appends doc to collection under a generated ID and
	// returns that ID.
	Add(ctx context.Context, collection string, doc Document) (string, error)

	// List returns up to limit documents from collection.
	// A limit of 0 or less means no limit.
	List(ctx context.Context, collection string, limit int) ([]Entry, error)

	// Query returns the documents in collection whose field equals value.
	Query(ctx context.Context, collection string, field string, value any) ([]Entry, error)

	// Apply performs all writes atomically. Either every write takes
	// effect or none do.
	Apply(ctx context.Context, writes []Write) error

	// Watch streams changes to collection until ctx is cancelled.
	// The returned channel is closed when the watch ends.
	Watch(ctx context.Context, collection string) (<-chan Event, error)

	// Close releases the underlying connection.
	Close() error
}
