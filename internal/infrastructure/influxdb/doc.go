// Package influxdb provides an optional time-series mirror for telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// The hosted document store is the source of truth for readings; this
// mirror exists for local dashboards and high-resolution retention.
// When influxdb.enabled is false in config.yaml the bridge runs without
// a mirror and Connect returns ErrDisabled.
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). Errors from async writes are surfaced through the
// SetOnError callback.
package influxdb
