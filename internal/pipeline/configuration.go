package pipeline

import (
	"fmt"
	"math"
	"time"

	"clipgif/internal/capture"
	"clipgif/internal/encoding"
	"clipgif/internal/services"
)

// Configuration describes one capture. Times are milliseconds on the source
// timeline.
type Configuration struct {
	FrameRate float64
	StartMs   float64
	EndMs     float64
	Width     int
	Height    int
	// Quality is the user-facing level, 1 (smallest) to 10 (best).
	Quality int
}

// Derived holds the values computed once when a run starts.
type Derived struct {
	Start          time.Duration
	End            time.Duration
	FrameInterval  time.Duration
	Span           time.Duration
	QuantizedSpan  time.Duration
	EncoderQuality int
	FrameCount     int
}

// Validate checks the configuration and returns a configuration error
// describing the first problem found.
func (c Configuration) Validate() error {
	var problem string
	switch {
	case !finite(c.FrameRate) || c.FrameRate <= 0:
		problem = fmt.Sprintf("frame rate must be positive, got %v", c.FrameRate)
	case !finite(c.StartMs) || c.StartMs < 0:
		problem = fmt.Sprintf("start must be >= 0 ms, got %v", c.StartMs)
	case !finite(c.EndMs) || c.EndMs <= c.StartMs:
		problem = fmt.Sprintf("end (%v ms) must be after start (%v ms)", c.EndMs, c.StartMs)
	case c.Width <= 0 || c.Height <= 0:
		problem = fmt.Sprintf("output size must be positive, got %dx%d", c.Width, c.Height)
	case c.Quality < 1 || c.Quality > 10:
		problem = fmt.Sprintf("quality must be between 1 and 10, got %d", c.Quality)
	case c.FrameInterval() <= 0:
		problem = fmt.Sprintf("frame rate %v is too high", c.FrameRate)
	}
	if problem != "" {
		return services.Wrap(services.ErrConfiguration, "pipeline", "validate", problem, nil)
	}
	return nil
}

// FrameInterval is the time between sampled frames.
func (c Configuration) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FrameRate)
}

// Plan returns the sampling schedule for the configuration.
func (c Configuration) Plan() capture.Plan {
	return capture.Plan{
		Start:    msToDuration(c.StartMs),
		End:      msToDuration(c.EndMs),
		Interval: c.FrameInterval(),
	}
}

// Derive computes the run constants.
func (c Configuration) Derive() Derived {
	plan := c.Plan()
	return Derived{
		Start:          plan.Start,
		End:            plan.End,
		FrameInterval:  plan.Interval,
		Span:           plan.Span(),
		QuantizedSpan:  plan.QuantizedSpan(),
		EncoderQuality: encoding.QualityFromLevel(c.Quality),
		FrameCount:     plan.FrameCount(),
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
