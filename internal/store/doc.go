// Package store defines the hosted document store capability used for
// device ownership, per-account links, and telemetry history.
//
// The Store interface covers exactly the operations the registry and
// telemetry bridge need: point reads and writes, merge upserts,
// subcollection appends, equality queries, atomic multi-document
// batches, and real-time change streams.
//
// Two implementations are provided. Firestore backs production through
// the Firebase Admin SDK. Memory is a mutex-guarded map used by tests
// and by `store.backend: memory` in development, where no cloud project
// is available.
//
// Paths are slash-separated. Document paths have an even number of
// segments ("devices/abc123"), collection paths an odd number
// ("devices/abc123/readings").
package store
