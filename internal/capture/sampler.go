// Package capture drives the seek, snapshot, hand-off loop that samples a
// time range of a video source at a fixed frame interval.
package capture

import (
	"context"
	"image"
	"log/slog"
	"time"

	"clipgif/internal/cancel"
	"clipgif/internal/logging"
	"clipgif/internal/media"
	"clipgif/internal/services"
)

// Frame is one captured snapshot.
type Frame struct {
	Index int
	At    time.Duration
	Image image.Image
}

// Sink receives each captured frame. Returning an error stops the run.
type Sink func(Frame) error

// ProgressFunc receives the capture ratio after each frame and a final 1 on
// completion.
type ProgressFunc func(ratio float64)

// Sampler walks a Plan against a source, drawing each frame onto a surface
// and handing the snapshot to a sink. One Sampler serves one run.
type Sampler struct {
	plan    Plan
	source  media.Source
	surface media.Surface
	token   *cancel.Token
	logger  *slog.Logger

	index     int
	lastRatio float64
}

// NewSampler builds a sampler for a single run.
func NewSampler(plan Plan, source media.Source, surface media.Surface, token *cancel.Token, logger *slog.Logger) *Sampler {
	return &Sampler{
		plan:    plan,
		source:  source,
		surface: surface,
		token:   token,
		logger:  logging.NewComponentLogger(logger, "sampler"),
	}
}

// Frames returns how many frames were handed to the sink.
func (s *Sampler) Frames() int { return s.index }

// Run samples until the plan is exhausted (completed=true), the token is set
// or ctx is cancelled (completed=false, err=nil), or a seek, capture or sink
// step fails (err != nil). Seeks are strictly sequential; a seek already in
// flight is allowed to finish before the token is checked.
func (s *Sampler) Run(ctx context.Context, sink Sink, progress ProgressFunc) (bool, error) {
	if err := s.plan.Validate(); err != nil {
		return false, services.Wrap(services.ErrConfiguration, "sampler", "plan", "", err)
	}
	for {
		if s.stopped(ctx) {
			return false, nil
		}
		at := s.plan.At(s.index)
		if at >= s.plan.End {
			s.report(progress, 1)
			s.logger.Debug("capture range exhausted", logging.Int("frames", s.index))
			return true, nil
		}

		seekErr := <-s.source.Seek(ctx, at)
		if s.stopped(ctx) {
			return false, nil
		}
		if seekErr != nil {
			return false, services.Wrap(services.ErrSource, "sampler", "seek", "seek to "+at.String(), seekErr)
		}

		img, err := s.source.Frame()
		if err != nil {
			return false, services.Wrap(services.ErrSource, "sampler", "capture", "read frame at "+at.String(), err)
		}
		s.surface.Draw(img)
		frame := Frame{Index: s.index, At: at, Image: s.surface.Snapshot()}
		if err := sink(frame); err != nil {
			if s.stopped(ctx) {
				return false, nil
			}
			return false, services.Wrap(services.ErrEncoder, "sampler", "add frame", "frame "+at.String(), err)
		}
		s.index++
		s.logger.Debug("frame captured", logging.Int("frame", frame.Index), logging.Duration("at", at))
		s.report(progress, s.plan.Ratio(at))
	}
}

func (s *Sampler) stopped(ctx context.Context) bool {
	return s.token.IsSet() || ctx.Err() != nil
}

func (s *Sampler) report(progress ProgressFunc, ratio float64) {
	if ratio < s.lastRatio {
		ratio = s.lastRatio
	}
	s.lastRatio = ratio
	if progress != nil {
		progress(ratio)
	}
}
