// Package database provides SQLite connection management and schema
// migrations for the relay's local state.
//
// The relay keeps only small, installation-local data in SQLite: the
// notification settings row and the alert log. Device ownership, metadata
// and telemetry history live in the hosted document store.
//
// Migrations are embedded SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with a matching .down.sql). They are applied in order on startup and
// tracked in the schema_migrations table.
package database
