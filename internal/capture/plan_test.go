package capture

import (
	"slices"
	"testing"
	"time"
)

func TestPlanScenario(t *testing.T) {
	p := Plan{Start: 0, End: time.Second, Interval: 100 * time.Millisecond}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.QuantizedSpan() != time.Second {
		t.Fatalf("quantized span = %v", p.QuantizedSpan())
	}
	if p.FrameCount() != 10 {
		t.Fatalf("frame count = %d", p.FrameCount())
	}
	want := []time.Duration{0, 100, 200, 300, 400, 500, 600, 700, 800, 900}
	for i := range want {
		want[i] *= time.Millisecond
	}
	if got := times(p); !slices.Equal(got, want) {
		t.Fatalf("times = %v, want %v", got, want)
	}
	if r := p.Ratio(900 * time.Millisecond); r < 0.8999 || r > 0.9001 {
		t.Fatalf("ratio at 900ms = %v", r)
	}
}

func TestPlanQuantizesUnevenSpan(t *testing.T) {
	p := Plan{Start: 250 * time.Millisecond, End: 1300 * time.Millisecond, Interval: 100 * time.Millisecond}
	if p.QuantizedSpan() != time.Second {
		t.Fatalf("quantized span = %v, want 1s", p.QuantizedSpan())
	}
	if p.FrameCount() != 11 {
		t.Fatalf("frame count = %d, want 11", p.FrameCount())
	}
	if last := times(p)[10]; last != 1250*time.Millisecond {
		t.Fatalf("last time = %v", last)
	}
	if r := p.Ratio(1250 * time.Millisecond); r != 1 {
		t.Fatalf("ratio should clamp to 1, got %v", r)
	}
}

func TestPlanShortSpan(t *testing.T) {
	p := Plan{Start: 0, End: 50 * time.Millisecond, Interval: 100 * time.Millisecond}
	if p.QuantizedSpan() != 0 {
		t.Fatalf("quantized span = %v", p.QuantizedSpan())
	}
	if p.FrameCount() != 1 {
		t.Fatalf("frame count = %d, want 1", p.FrameCount())
	}
	if p.Ratio(0) != 1 {
		t.Fatalf("zero quantized span must report 1")
	}
}

func TestPlanValidate(t *testing.T) {
	cases := []Plan{
		{Start: -1, End: time.Second, Interval: time.Millisecond},
		{Start: time.Second, End: time.Second, Interval: time.Millisecond},
		{Start: 0, End: time.Second, Interval: 0},
	}
	for _, p := range cases {
		if err := p.Validate(); err == nil {
			t.Errorf("expected error for %+v", p)
		}
	}
}

func TestPlanNoDriftOverLongRuns(t *testing.T) {
	interval := time.Second / 3
	p := Plan{Start: 0, End: time.Hour, Interval: interval}
	if got := p.At(10800); got != 10800*interval {
		t.Fatalf("At(10800) = %v", got)
	}
}

func times(p Plan) []time.Duration {
	out := make([]time.Duration, p.FrameCount())
	for i := range out {
		out[i] = p.At(i)
	}
	return out
}
