// Package logging assembles structured slog loggers used across clipgif.
//
// It owns the console and JSON handlers, mirrors every record into a debug
// JSON log file when a log directory is configured, and exposes helpers that
// tag lines with run identifiers and clip names taken from the context. A
// no-op logger is provided for tests and library callers that pass nil.
package logging
