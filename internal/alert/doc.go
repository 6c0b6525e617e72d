// Package alert turns readings into notifications.
//
// The Engine evaluates each reading against strict thresholds: smoke
// above its threshold (only at ALL sensitivity), raw gas or derived CO2
// above theirs (always). Both conditions together emit a critical
// alert, one alone emits its own channel, neither is a no-op.
// Re-emission on a channel is suppressed inside a configurable window
// so a continuously-triggering sensor produces one alert, not a storm.
//
// Policy lives in the local notification_settings row and emitted
// alerts are appended to the local alert_log. Delivery is fire-and-
// forget through FCM or, when push is disabled, the log.
package alert
