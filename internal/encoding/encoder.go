package encoding

import (
	"context"
	"image"
	"time"
)

// DefaultWorkers is the encoder worker pool size used when none is configured.
const DefaultWorkers = 8

// Encoder accumulates frames and renders them into an animated image.
type Encoder interface {
	// AddFrame appends a frame shown for delay.
	AddFrame(img image.Image, delay time.Duration) error
	// Render encodes the accumulated frames. progress receives ratios in
	// [0,1], non-decreasing. Render is called at most once.
	Render(ctx context.Context, progress func(ratio float64)) ([]byte, error)
	// Abort stops any in-progress render. It is safe to call at any time.
	Abort()
}

// Options are the per-run encoder settings.
type Options struct {
	Width  int
	Height int
	// Quality is the encoder-side value, 1 (best) to 31 (fastest).
	Quality int
	// Loop is the repeat count: 0 forever, -1 play once.
	Loop    int
	Workers int
}

// Factory builds a fresh Encoder for one run.
type Factory func(Options) (Encoder, error)

// QualityFromLevel maps a 1..10 quality level onto the encoder scale where
// lower values mean better output.
func QualityFromLevel(level int) int {
	return 31 - level*3
}

// WithDefaults fills zero-valued options.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Quality <= 0 {
		o.Quality = QualityFromLevel(5)
	}
	return o
}
