package capture_test

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"clipgif/internal/cancel"
	"clipgif/internal/capture"
	"clipgif/internal/logging"
	"clipgif/internal/media/surface"
	"clipgif/internal/services"
	"clipgif/internal/testsupport"
)

func scenarioPlan() capture.Plan {
	return capture.Plan{Start: 0, End: time.Second, Interval: 100 * time.Millisecond}
}

func newSampler(src *testsupport.FakeSource, token *cancel.Token) *capture.Sampler {
	canvas := surface.NewCanvas()
	canvas.Resize(4, 4)
	return capture.NewSampler(scenarioPlan(), src, canvas, token, logging.NewNop())
}

func TestRunCapturesEveryFrameBeforeEnd(t *testing.T) {
	src := testsupport.NewFakeSource()
	sampler := newSampler(src, cancel.New())

	var frames []capture.Frame
	var ratios []float64
	completed, err := sampler.Run(context.Background(),
		func(f capture.Frame) error { frames = append(frames, f); return nil },
		func(r float64) { ratios = append(ratios, r) },
	)
	if err != nil || !completed {
		t.Fatalf("Run = %v, %v", completed, err)
	}
	if len(frames) != 10 {
		t.Fatalf("captured %d frames, want 10", len(frames))
	}
	for i, f := range frames {
		if f.Index != i || f.At != time.Duration(i)*100*time.Millisecond {
			t.Fatalf("frame %d = index %d at %v", i, f.Index, f.At)
		}
		if b := f.Image.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
			t.Fatalf("frame %d not drawn at surface size: %v", i, b)
		}
	}
	for _, at := range src.Seeks() {
		if at >= time.Second {
			t.Fatalf("seeked past end: %v", at)
		}
	}
	if src.MaxInFlight() != 1 {
		t.Fatalf("expected one outstanding seek at a time, got %d", src.MaxInFlight())
	}

	if len(ratios) != 11 {
		t.Fatalf("got %d ratio reports, want 11", len(ratios))
	}
	for i := 1; i < len(ratios); i++ {
		if ratios[i] <= ratios[i-1] {
			t.Fatalf("ratios not strictly increasing: %v", ratios)
		}
	}
	if ratios[len(ratios)-1] != 1 {
		t.Fatalf("final ratio = %v, want 1", ratios[len(ratios)-1])
	}
	if sampler.Frames() != 10 {
		t.Fatalf("Frames() = %d", sampler.Frames())
	}
}

func TestRunStopsWhenTokenSetDuringSeek(t *testing.T) {
	token := cancel.New()
	src := testsupport.NewFakeSource()
	src.BeforeComplete = func(at time.Duration) {
		if at == 300*time.Millisecond {
			token.Set()
		}
	}
	sampler := newSampler(src, token)

	var frames int
	var ratios []float64
	completed, err := sampler.Run(context.Background(),
		func(capture.Frame) error { frames++; return nil },
		func(r float64) { ratios = append(ratios, r) },
	)
	if err != nil || completed {
		t.Fatalf("Run = %v, %v; want stopped without error", completed, err)
	}
	if frames != 3 {
		t.Fatalf("captured %d frames, want 3", frames)
	}
	for _, r := range ratios {
		if r == 1 {
			t.Fatal("completion ratio must not be reported after abort")
		}
	}
}

func TestRunStopsBeforeFirstFrame(t *testing.T) {
	token := cancel.New()
	token.Set()
	src := testsupport.NewFakeSource()
	completed, err := newSampler(src, token).Run(context.Background(),
		func(capture.Frame) error { t.Fatal("sink must not be called"); return nil }, nil)
	if err != nil || completed {
		t.Fatalf("Run = %v, %v", completed, err)
	}
	if len(src.Seeks()) != 0 {
		t.Fatalf("expected no seeks, got %v", src.Seeks())
	}
}

func TestRunReportsSeekFailure(t *testing.T) {
	src := testsupport.NewFakeSource()
	src.FailAt = map[time.Duration]bool{200 * time.Millisecond: true}
	var frames int
	completed, err := newSampler(src, cancel.New()).Run(context.Background(),
		func(capture.Frame) error { frames++; return nil }, nil)
	if completed {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, services.ErrSource) || !errors.Is(err, testsupport.ErrSeekFailed) {
		t.Fatalf("expected source error, got %v", err)
	}
	if frames != 2 {
		t.Fatalf("captured %d frames before failure, want 2", frames)
	}
}

func TestRunReportsSinkFailure(t *testing.T) {
	boom := errors.New("encoder full")
	_, err := newSampler(testsupport.NewFakeSource(), cancel.New()).Run(context.Background(),
		func(capture.Frame) error { return boom }, nil)
	if !errors.Is(err, services.ErrEncoder) || !errors.Is(err, boom) {
		t.Fatalf("expected encoder error, got %v", err)
	}
}

func TestRunHonoursContextCancellation(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	src := testsupport.NewFakeSource()
	src.BeforeComplete = func(at time.Duration) {
		if at == 100*time.Millisecond {
			cancelFn()
		}
	}
	var frames []image.Image
	completed, err := newSampler(src, cancel.New()).Run(ctx,
		func(f capture.Frame) error { frames = append(frames, f.Image); return nil }, nil)
	if err != nil || completed {
		t.Fatalf("Run = %v, %v", completed, err)
	}
	if len(frames) != 1 {
		t.Fatalf("captured %d frames, want 1", len(frames))
	}
}

func TestRunRejectsInvalidPlan(t *testing.T) {
	canvas := surface.NewCanvas()
	s := capture.NewSampler(capture.Plan{}, testsupport.NewFakeSource(), canvas, cancel.New(), nil)
	if _, err := s.Run(context.Background(), func(capture.Frame) error { return nil }, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
