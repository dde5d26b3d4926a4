// Package logging assembles structured slog loggers and formatting helpers used
// across vidsub.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so step code can tag log lines with the
// workflow step and correlation ID automatically. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
