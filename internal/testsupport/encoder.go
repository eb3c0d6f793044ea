package testsupport

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"clipgif/internal/encoding"
)

// ErrRenderFailed is returned by RecordingEncoder.Render when FailRender is set.
var ErrRenderFailed = errors.New("fake render failed")

// RecordingEncoder implements encoding.Encoder and records every call.
type RecordingEncoder struct {
	Options encoding.Options
	// AfterAdd runs after each accepted frame with the running count.
	AfterAdd func(count int)
	// Gate, when non-nil, blocks Render until it is closed or Abort is called.
	Gate chan struct{}
	// FailRender makes Render return ErrRenderFailed.
	FailRender bool
	// Blob is returned by a successful Render.
	Blob []byte

	mu      sync.Mutex
	frames  []image.Image
	delays  []time.Duration
	renders int
	aborts  atomic.Int32
	aborted chan struct{}
	once    sync.Once
}

// NewRecordingEncoder returns an encoder whose render yields "GIF89a".
func NewRecordingEncoder() *RecordingEncoder {
	return &RecordingEncoder{Blob: []byte("GIF89a"), aborted: make(chan struct{})}
}

func (e *RecordingEncoder) AddFrame(img image.Image, delay time.Duration) error {
	e.mu.Lock()
	e.frames = append(e.frames, img)
	e.delays = append(e.delays, delay)
	count := len(e.frames)
	e.mu.Unlock()
	if e.AfterAdd != nil {
		e.AfterAdd(count)
	}
	return nil
}

func (e *RecordingEncoder) Render(ctx context.Context, progress func(float64)) ([]byte, error) {
	e.mu.Lock()
	e.renders++
	e.mu.Unlock()

	progress(0.5)
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-e.aborted:
			return nil, errors.New("render aborted")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.FailRender {
		return nil, ErrRenderFailed
	}
	progress(1)
	return append([]byte(nil), e.Blob...), nil
}

func (e *RecordingEncoder) Abort() {
	e.aborts.Add(1)
	e.once.Do(func() { close(e.aborted) })
}

// Frames returns the accepted frames.
func (e *RecordingEncoder) Frames() []image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]image.Image(nil), e.frames...)
}

// Delays returns the delay passed with each frame.
func (e *RecordingEncoder) Delays() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.delays...)
}

// Renders counts Render calls.
func (e *RecordingEncoder) Renders() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renders
}

// Aborts counts Abort calls.
func (e *RecordingEncoder) Aborts() int {
	return int(e.aborts.Load())
}

// RecordingFactory hands out RecordingEncoders and keeps them for inspection.
type RecordingFactory struct {
	// Configure, when set, adjusts each encoder before it is returned.
	Configure func(*RecordingEncoder)

	mu       sync.Mutex
	encoders []*RecordingEncoder
}

// New implements encoding.Factory.
func (f *RecordingFactory) New(opts encoding.Options) (encoding.Encoder, error) {
	enc := NewRecordingEncoder()
	enc.Options = opts
	if f.Configure != nil {
		f.Configure(enc)
	}
	f.mu.Lock()
	f.encoders = append(f.encoders, enc)
	f.mu.Unlock()
	return enc, nil
}

// Encoders returns every encoder built so far.
func (f *RecordingFactory) Encoders() []*RecordingEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*RecordingEncoder(nil), f.encoders...)
}

// Last returns the most recent encoder or nil.
func (f *RecordingFactory) Last() *RecordingEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.encoders) == 0 {
		return nil
	}
	return f.encoders[len(f.encoders)-1]
}
