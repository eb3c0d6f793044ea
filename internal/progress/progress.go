// Package progress folds the capture and render phases of a run into a single
// percentage and a coarse status label.
package progress

const (
	// CaptureWeight is the share of overall progress owned by frame capture.
	CaptureWeight = 0.7
	// RenderWeight is the share owned by the encoder's render phase.
	RenderWeight = 0.3
)

// Status describes which phase dominates the reported progress.
type Status int

const (
	Gathering Status = iota
	Rendering
)

func (s Status) String() string {
	switch s {
	case Rendering:
		return "Rendering GIF…"
	default:
		return "Gathering frames…"
	}
}

// Label returns a short machine-friendly name for logs and metrics.
func (s Status) Label() string {
	if s == Rendering {
		return "rendering"
	}
	return "gathering"
}

// Combine returns overall progress in percent for the two phase ratios.
func Combine(capture, render float64) float64 {
	return (capture*CaptureWeight + render*RenderWeight) * 100
}

// StatusFor reports Gathering until capture is complete.
func StatusFor(capture float64) Status {
	if capture < 1 {
		return Gathering
	}
	return Rendering
}

// Tracker keeps the latest ratio of each phase for one run. Ratios are
// clamped to [0,1] and never move backwards.
type Tracker struct {
	capture float64
	render  float64
}

// SetCapture records a capture ratio and returns the combined percent.
func (t *Tracker) SetCapture(ratio float64) float64 {
	if ratio = clamp(ratio); ratio > t.capture {
		t.capture = ratio
	}
	return t.Percent()
}

// SetRender records a render ratio and returns the combined percent.
func (t *Tracker) SetRender(ratio float64) float64 {
	if ratio = clamp(ratio); ratio > t.render {
		t.render = ratio
	}
	return t.Percent()
}

// Percent returns the combined progress.
func (t *Tracker) Percent() float64 {
	return Combine(t.capture, t.render)
}

// Status returns the status for the recorded capture ratio.
func (t *Tracker) Status() Status {
	return StatusFor(t.capture)
}

// Capture returns the recorded capture ratio.
func (t *Tracker) Capture() float64 { return t.capture }

// Render returns the recorded render ratio.
func (t *Tracker) Render() float64 { return t.render }

func clamp(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
