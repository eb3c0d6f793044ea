package encoding

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clipgif/internal/cancel"
	"clipgif/internal/logging"
	"clipgif/internal/services"
)

// ErrFrameRejected is returned by AddFrame after finalize or abort.
var ErrFrameRejected = errors.New("frame rejected")

// Callbacks receive render events. Nil callbacks are ignored. None of them
// fire once the run's token is set.
type Callbacks struct {
	RenderProgress func(ratio float64)
	Finished       func(blob []byte)
	Failed         func(err error)
}

// Adapter owns one Encoder for the lifetime of a run.
type Adapter struct {
	enc       Encoder
	token     *cancel.Token
	delay     time.Duration
	callbacks Callbacks
	logger    *slog.Logger

	mu        sync.Mutex
	finalized bool
	frames    atomic.Int64
	aborted   atomic.Bool
	abortOnce sync.Once
}

// NewAdapter wraps enc. Every frame is added with the same delay (the frame
// interval of the run).
func NewAdapter(enc Encoder, token *cancel.Token, delay time.Duration, callbacks Callbacks, logger *slog.Logger) *Adapter {
	return &Adapter{
		enc:       enc,
		token:     token,
		delay:     delay,
		callbacks: callbacks,
		logger:    logging.NewComponentLogger(logger, "encoder"),
	}
}

// AddFrame forwards a frame unless the run is finalizing or aborted.
func (a *Adapter) AddFrame(img image.Image) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized || a.aborted.Load() || a.token.IsSet() {
		return ErrFrameRejected
	}
	if err := a.enc.AddFrame(img, a.delay); err != nil {
		return services.Wrap(services.ErrEncoder, "encoder", "add frame", "", err)
	}
	a.frames.Add(1)
	return nil
}

// Frames returns the number of accepted frames.
func (a *Adapter) Frames() int {
	return int(a.frames.Load())
}

// Finalize starts rendering in the background and returns a channel closed
// once the render has returned and its callback (if any) has run.
func (a *Adapter) Finalize(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	a.mu.Lock()
	already := a.finalized
	a.finalized = true
	a.mu.Unlock()
	frames := a.Frames()

	if already {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if a.token.IsSet() || a.aborted.Load() {
			return
		}
		a.logger.Debug("render started", logging.Int("frames", frames))
		blob, err := a.enc.Render(ctx, func(ratio float64) {
			if a.token.IsSet() || a.callbacks.RenderProgress == nil {
				return
			}
			a.callbacks.RenderProgress(ratio)
		})
		if a.token.IsSet() || a.aborted.Load() {
			a.logger.Debug("render result dropped after abort")
			return
		}
		if err != nil {
			if a.callbacks.Failed != nil {
				a.callbacks.Failed(services.Wrap(services.ErrEncoder, "encoder", "render", "", err))
			}
			return
		}
		a.logger.Debug("render finished", logging.Int("bytes", len(blob)))
		if a.callbacks.Finished != nil {
			a.callbacks.Finished(blob)
		}
	}()
	return done
}

// Abort forwards to the encoder once. It does not take the frame lock, so it
// is safe to call from inside an encoder hook that runs during AddFrame.
func (a *Adapter) Abort() {
	a.abortOnce.Do(func() {
		a.aborted.Store(true)
		a.enc.Abort()
	})
}
