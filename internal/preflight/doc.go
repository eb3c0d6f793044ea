// Package preflight provides readiness checks for the directories, external
// binaries and host resources a capture depends on.
//
// The doctor command prints every check; capture and batch run the same
// checks before starting and refuse to run when a required one fails.
// Resource estimates only ever warn.
package preflight
