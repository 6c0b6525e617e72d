// Package telemetry ingests device readings and relays commands.
//
// The Bridge subscribes to devices/+/data and devices/+/res. Data
// messages are parsed leniently (missing numerics become zero, missing
// device_id is a hard drop), persisted to the document store, evaluated
// by the alert engine, optionally mirrored to the time-series store,
// and forwarded to subscribed relay clients. Response messages pass
// through to relay clients verbatim.
//
// Last-seen timestamps advance monotonic-max: at-least-once broker
// delivery can replay or reorder messages, and a stale reading must
// never move a device's last-seen backward.
package telemetry
