// Package gifenc is the in-process GIF backend. Frames are quantized in
// parallel on an errgroup worker pool and written with image/gif.
package gifenc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"clipgif/internal/encoding"
	"clipgif/internal/logging"
)

// ErrAborted is returned by Render after Abort.
var ErrAborted = errors.New("gif encode aborted")

// quantizeShare is the part of render progress spent quantizing frames; the
// rest covers writing the file.
const quantizeShare = 0.9

type pendingFrame struct {
	img   image.Image
	delay time.Duration
}

// Encoder implements encoding.Encoder.
type Encoder struct {
	opts   encoding.Options
	logger *slog.Logger

	mu       sync.Mutex
	frames   []pendingFrame
	rendered bool
	aborted  atomic.Bool
}

// New builds an encoder for one run.
func New(opts encoding.Options, logger *slog.Logger) (*Encoder, error) {
	opts = opts.WithDefaults()
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("gif encoder: invalid size %dx%d", opts.Width, opts.Height)
	}
	return &Encoder{opts: opts, logger: logging.NewComponentLogger(logger, "gifenc")}, nil
}

// NewFactory returns an encoding.Factory producing gifenc encoders.
func NewFactory(logger *slog.Logger) encoding.Factory {
	return func(opts encoding.Options) (encoding.Encoder, error) {
		return New(opts, logger)
	}
}

func (e *Encoder) AddFrame(img image.Image, delay time.Duration) error {
	if img == nil {
		return errors.New("gif encoder: nil frame")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rendered {
		return errors.New("gif encoder: frame added after render")
	}
	if e.aborted.Load() {
		return ErrAborted
	}
	e.frames = append(e.frames, pendingFrame{img: img, delay: delay})
	return nil
}

func (e *Encoder) Render(ctx context.Context, progress func(float64)) ([]byte, error) {
	e.mu.Lock()
	if e.rendered {
		e.mu.Unlock()
		return nil, errors.New("gif encoder: render called twice")
	}
	e.rendered = true
	frames := e.frames
	e.frames = nil
	e.mu.Unlock()

	if len(frames) == 0 {
		return nil, errors.New("gif encoder: no frames")
	}
	if progress == nil {
		progress = func(float64) {}
	}

	started := time.Now()
	paletted := make([]*image.Paletted, len(frames))
	delays := make([]int, len(frames))

	var progressMu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, frame := range frames {
		delays[i] = centiseconds(frame.delay)
		g.Go(func() error {
			if e.aborted.Load() {
				return ErrAborted
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			paletted[i] = e.quantize(frame.img)

			progressMu.Lock()
			completed++
			progress(quantizeShare * float64(completed) / float64(len(frames)))
			progressMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if e.aborted.Load() {
		return nil, ErrAborted
	}

	var buf bytes.Buffer
	anim := &gif.GIF{
		Image:     paletted,
		Delay:     delays,
		LoopCount: e.opts.Loop,
		Config: image.Config{
			ColorModel: paletted[0].Palette,
			Width:      e.opts.Width,
			Height:     e.opts.Height,
		},
	}
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("gif encoder: write: %w", err)
	}
	progress(1)
	e.logger.Debug("gif rendered",
		logging.Int("frames", len(frames)),
		logging.Int("bytes", buf.Len()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return buf.Bytes(), nil
}

// Abort makes pending and future work fail with ErrAborted.
func (e *Encoder) Abort() {
	e.aborted.Store(true)
}

func (e *Encoder) quantize(src image.Image) *image.Paletted {
	bounds := image.Rect(0, 0, e.opts.Width, e.opts.Height)
	rgba := image.NewRGBA(bounds)
	if src.Bounds().Size() == bounds.Size() {
		draw.Draw(rgba, bounds, src, src.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(rgba, bounds, src, src.Bounds(), draw.Src, nil)
	}
	out := image.NewPaletted(bounds, buildPalette(rgba, e.opts.Quality))
	draw.FloydSteinberg.Draw(out, bounds, rgba, image.Point{})
	return out
}

// centiseconds converts a frame delay to GIF units, never below 1.
func centiseconds(d time.Duration) int {
	cs := int((d + 5*time.Millisecond) / (10 * time.Millisecond))
	if cs < 1 {
		return 1
	}
	return cs
}

var _ encoding.Encoder = (*Encoder)(nil)
