// Package pipeline orchestrates one frame-capture run at a time: it validates
// the clip configuration, prepares the surface, source and encoder, drives the
// capture sampler, finalizes the encoder, and reports progress plus exactly
// one terminal outcome (completed, aborted or failed) to its observers.
//
// Each run gets its own cancel.Token. Abort, a second Start, Close, or
// cancellation of the context passed to Start all set that token; every
// component stops at its next continuation point.
package pipeline
