// Package services defines shared utilities consumed by the capture pipeline
// and its external tool integrations.
//
// It provides the error markers plus the Wrap helper used to classify
// failures (configuration, source, encoder, cancelled) and the context helpers
// that stamp run identifiers and clip names for logging.
package services
