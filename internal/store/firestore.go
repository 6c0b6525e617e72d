package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is the production Store backed by Cloud Firestore through
// the Firebase Admin SDK.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore initialises the Firebase app and opens a Firestore client.
//
// credentialsFile is a service account JSON key. When empty, application
// default credentials are used (the normal case on GCP).
func NewFirestore(ctx context.Context, projectID string, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening firestore client: %w", err)
	}

	return &Firestore{client: client}, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (Document, error) {
	if err := validateDocPath(path); err != nil {
		return nil, err
	}

	snap, err := f.client.Doc(path).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", path, err)
	}
	return snap.Data(), nil
}

func (f *Firestore) Set(ctx context.Context, path string, doc Document) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	if _, err := f.client.Doc(path).Set(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("setting %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Merge(ctx context.Context, path string, doc Document) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	if _, err := f.client.Doc(path).Set(ctx, map[string]any(doc), firestore.MergeAll); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	if err := validateDocPath(path); err != nil {
		return err
	}

	if _, err := f.client.Doc(path).Delete(ctx); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	if err := validateCollectionPath(collection); err != nil {
		return "", err
	}

	ref, _, err := f.client.Collection(collection).Add(ctx, map[string]any(doc))
	if err != nil {
		return "", fmt.Errorf("adding to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *Firestore) List(ctx context.Context, collection string, limit int) ([]Entry, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	q := f.client.Collection(collection).Query
	if limit > 0 {
		q = q.Limit(limit)
	}
	return f.collect(ctx, q.Documents(ctx), collection)
}

func (f *Firestore) Query(ctx context.Context, collection string, field string, value any) ([]Entry, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	q := f.client.Collection(collection).Where(field, "==", value)
	return f.collect(ctx, q.Documents(ctx), collection)
}

func (f *Firestore) collect(_ context.Context, it *firestore.DocumentIterator, collection string) ([]Entry, error) {
	defer it.Stop()

	var entries []Entry
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("iterating %s: %w", collection, err)
		}
		entries = append(entries, Entry{ID: snap.Ref.ID, Doc: snap.Data()})
	}
}

func (f *Firestore) Apply(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if err := validateDocPath(w.Path); err != nil {
			return err
		}
	}

	batch := f.client.Batch()
	for _, w := range writes {
		ref := f.client.Doc(w.Path)
		switch w.Op {
		case OpSet:
			batch.Set(ref, map[string]any(w.Doc))
		case OpMerge:
			batch.Set(ref, map[string]any(w.Doc), firestore.MergeAll)
		case OpDelete:
			batch.Delete(ref)
		}
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch of %d writes: %w", len(writes), err)
	}
	return nil
}

func (f *Firestore) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	if err := validateCollectionPath(collection); err != nil {
		return nil, err
	}

	it := f.client.Collection(collection).Snapshots(ctx)
	ch := make(chan Event, watchBuffer)

	go func() {
		defer close(ch)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				// Context cancellation or stream failure ends the watch.
				return
			}
			for _, change := range snap.Changes {
				ev := Event{ID: change.Doc.Ref.ID}
				switch change.Kind {
				case firestore.DocumentAdded:
					ev.Type = EventAdded
					ev.Doc = change.Doc.Data()
				case firestore.DocumentModified:
					ev.Type = EventModified
					ev.Doc = change.Doc.Data()
				case firestore.DocumentRemoved:
					ev.Type = EventRemoved
				}

				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (f *Firestore) Close() error {
	if f.client == nil {
		return nil
	}
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("closing firestore client: %w", err)
	}
	return nil
}
