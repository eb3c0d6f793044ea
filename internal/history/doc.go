// Package history persists one row per pipeline run in a SQLite database so
// past captures, their outcome and failure class can be listed later.
//
// Recorder adapts a Store to pipeline.Observer; wiring it into an
// orchestrator records every run without the caller touching the store.
package history
