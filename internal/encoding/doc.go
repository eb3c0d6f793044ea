// Package encoding bridges captured frames to an image-sequence encoder.
//
// Encoder is the contract every backend satisfies (see the gifenc and
// ffmpegenc subpackages). Adapter wraps one Encoder for one run: it gates
// frame hand-off and render callbacks on the run's cancel.Token and forwards
// an abort to the encoder exactly once.
package encoding
