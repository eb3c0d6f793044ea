package capture

import (
	"fmt"
	"time"
)

// Plan is the sampling schedule for one run: timestamps Start, Start+Interval,
// ... strictly before End.
type Plan struct {
	Start    time.Duration
	End      time.Duration
	Interval time.Duration
}

// Validate reports schedule errors.
func (p Plan) Validate() error {
	switch {
	case p.Start < 0:
		return fmt.Errorf("start %s is negative", p.Start)
	case p.End <= p.Start:
		return fmt.Errorf("end %s must be after start %s", p.End, p.Start)
	case p.Interval <= 0:
		return fmt.Errorf("frame interval %s must be positive", p.Interval)
	}
	return nil
}

// Span is End - Start.
func (p Plan) Span() time.Duration {
	return p.End - p.Start
}

// QuantizedSpan rounds the span down to a whole number of intervals. It is
// the progress denominator.
func (p Plan) QuantizedSpan() time.Duration {
	span := p.Span()
	if p.Interval <= 0 || span <= 0 {
		return 0
	}
	return span - span%p.Interval
}

// At returns the timestamp of frame i.
func (p Plan) At(i int) time.Duration {
	return p.Start + time.Duration(i)*p.Interval
}

// FrameCount is the number of timestamps strictly before End.
func (p Plan) FrameCount() int {
	if p.Interval <= 0 || p.End <= p.Start {
		return 0
	}
	span := p.Span()
	n := int(span / p.Interval)
	if span%p.Interval != 0 {
		n++
	}
	return n
}

// Ratio is the capture progress after the frame at t has been captured,
// clamped to [0,1]. A zero quantized span reports 1.
func (p Plan) Ratio(t time.Duration) float64 {
	q := p.QuantizedSpan()
	if q <= 0 {
		return 1
	}
	r := float64(t-p.Start) / float64(q)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
