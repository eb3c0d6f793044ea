// Package config loads, normalizes, and validates clipgif configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts) and reads TOML files. The Config type centralizes the default
// clip parameters, encoder backend selection, external tool names and the
// logging/metrics knobs the CLI needs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
