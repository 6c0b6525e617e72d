// Package logging provides structured logging for the AeroSense relay.
//
// It wraps the standard library's log/slog with configuration-driven
// output format and level selection, plus default fields identifying the
// service and build version. Components receive a *Logger (or a narrow
// logging interface of their own) via dependency injection rather than a
// package-level global.
package logging
