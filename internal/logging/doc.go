// Package logging assembles structured slog loggers used across banana3d.
//
// It owns the console and JSON handlers, level parsing, and output plumbing,
// and exposes context helpers so workflow code can tag log lines with the run
// ID, stage, and polling session without threading them through every call.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
