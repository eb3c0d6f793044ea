// Package media defines the collaborators the capture pipeline consumes: a
// seekable video source and a render surface that frames are drawn onto
// before they are handed to an encoder.
//
// Concrete implementations live in the subpackages: ffmpeg decodes frames
// from a video file, surface keeps an in-memory canvas, and ffprobe inspects
// files before a source is opened.
package media

import (
	"context"
	"image"
	"time"
)

// Source is a seekable video timeline.
type Source interface {
	// Duration returns the total timeline length.
	Duration() time.Duration
	// CurrentTime returns the position of the last completed seek.
	CurrentTime() time.Duration
	Paused() bool
	Pause() error
	// Seek moves the playhead to at. The returned channel receives exactly one
	// value (nil on success) and is then closed. Callers must not issue a new
	// seek before the previous one completes.
	Seek(ctx context.Context, at time.Duration) <-chan error
	// Frame returns the picture at the current position.
	Frame() (image.Image, error)
}

// Surface is a resizable drawing target. Snapshot returns an image the
// caller owns; later draws never mutate it.
type Surface interface {
	Resize(width, height int)
	Draw(img image.Image)
	Snapshot() image.Image
}
