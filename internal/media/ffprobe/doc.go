// Package ffprobe runs ffprobe against a video file and exposes the few
// fields the capture pipeline needs: duration, picture size and frame rate.
package ffprobe
