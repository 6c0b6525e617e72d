package store

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// watchBuffer is the event buffer per watcher. Slow consumers drop
// events rather than blocking writers.
const watchBuffer = 64

// Memory is an in-process Store used by tests and `backend: memory`
// development mode. Documents are held in a mutex-guarded map keyed by
// full document path.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]Document
	watchers map[string][]chan Event
	closed   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]Document),
		watchers: make(map[string][]chan Event),
	}
}

func (m *Memory) Get(_ context.Context, path string) (Document, error) {
	if err := validateDocPath(path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *Memory) Set(_ context.Context, path string, doc Document) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.setLocked(path, doc)
	return nil
}

func (m *Memory) Merge(_ context.Context, path string, doc Document) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.mergeLocked(path, doc)
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.deleteLocked(path)
	return nil
}

func (m *Memory) Add(_ context.Context, collection string, doc Document) (string, error) {
	if err := validateCollectionPath(collection); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	m.setLocked(collection+"/"+id, doc)
	return id, nil
}

func (m *Memory) List(_ context.Context, collection string, limit int) ([]Entry, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	entries := m.collectLocked(collection, func(Document) bool { return true })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *Memory) Query(_ context.Context, collection string, field string, value any) ([]Entry, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	return m.collectLocked(collection, func(doc Document) bool {
		got, ok := doc[field]
		return ok && reflect.DeepEqual(got, value)
	}), nil
}

func (m *Memory) Apply(_ context.Context, writes []Write) error {
	for _, w := range writes {
		if err := validateDocPath(w.Path); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Single lock covers the whole batch, so it is atomic to readers.
	for _, w := range writes {
		switch w.Op {
		case OpSet:
			m.setLocked(w.Path, w.Doc)
		case OpMerge:
			m.mergeLocked(w.Path, w.Doc)
		case OpDelete:
			m.deleteLocked(w.Path)
		}
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Event, watchBuffer)
	m.watchers[collection] = append(m.watchers[collection], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeWatcherLocked(collection, ch)
	}()

	return ch, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for collection, chans := range m.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(m.watchers, collection)
	}
	return nil
}

func (m *Memory) setLocked(path string, doc Document) {
	_, existed := m.docs[path]
	m.docs[path] = copyDoc(doc)
	m.notifyLocked(path, existed, false)
}

func (m *Memory) mergeLocked(path string, doc Document) {
	existing, existed := m.docs[path]
	if !existed {
		existing = make(Document, len(doc))
	}
	merged := copyDoc(existing)
	for k, v := range doc {
		merged[k] = copyValue(v)
	}
	m.docs[path] = merged
	m.notifyLocked(path, existed, false)
}

func (m *Memory) deleteLocked(path string) {
	if _, ok := m.docs[path]; !ok {
		return
	}
	delete(m.docs, path)
	m.notifyLocked(path, true, true)
}

func (m *Memory) collectLocked(collection string, match func(Document) bool) []Entry {
	prefix := collection + "/"
	var entries []Entry
	for path, doc := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := path[len(prefix):]
		if strings.Contains(id, "/") {
			continue
		}
		if match(doc) {
			entries = append(entries, Entry{ID: id, Doc: copyDoc(doc)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// notifyLocked fans an event out to the collection's watchers.
// Must be called with mu held.
func (m *Memory) notifyLocked(path string, existed bool, removed bool) {
	idx := strings.LastIndex(path, "/")
	collection, id := path[:idx], path[idx+1:]

	chans, ok := m.watchers[collection]
	if !ok {
		return
	}

	ev := Event{ID: id}
	switch {
	case removed:
		ev.Type = EventRemoved
	case existed:
		ev.Type = EventModified
		ev.Doc = copyDoc(m.docs[path])
	default:
		ev.Type = EventAdded
		ev.Doc = copyDoc(m.docs[path])
	}

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			// Drop rather than block writers on a slow watcher.
		}
	}
}

func (m *Memory) removeWatcherLocked(collection string, target chan Event) {
	chans := m.watchers[collection]
	for i, ch := range chans {
		if ch == target {
			m.watchers[collection] = append(chans[:i], chans[i+1:]...)
			if !m.closed {
				close(ch)
			}
			return
		}
	}
}

func validateDocPath(path string) error {
	n := segmentCount(path)
	if n == 0 || n%2 != 0 {
		return ErrInvalidPath
	}
	return nil
}

func validateCollectionPath(path string) error {
	n := segmentCount(path)
	if n == 0 || n%2 == 0 {
		return ErrInvalidPath
	}
	return nil
}

func segmentCount(path string) int {
	if path == "" {
		return 0
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return 0
		}
	}
	return len(segments)
}

// copyDoc returns a deep copy so callers cannot mutate store internals.
func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Document:
		return copyDoc(t)
	case map[string]any:
		return map[string]any(copyDoc(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
