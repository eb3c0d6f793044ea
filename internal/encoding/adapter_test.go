package encoding_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"clipgif/internal/cancel"
	"clipgif/internal/encoding"
	"clipgif/internal/logging"
	"clipgif/internal/services"
	"clipgif/internal/testsupport"
)

type recorder struct {
	mu       sync.Mutex
	progress []float64
	blob     []byte
	err      error
	finished int
	failed   int
}

func (r *recorder) callbacks() encoding.Callbacks {
	return encoding.Callbacks{
		RenderProgress: func(v float64) { r.mu.Lock(); r.progress = append(r.progress, v); r.mu.Unlock() },
		Finished:       func(b []byte) { r.mu.Lock(); r.blob = b; r.finished++; r.mu.Unlock() },
		Failed:         func(err error) { r.mu.Lock(); r.err = err; r.failed++; r.mu.Unlock() },
	}
}

func frame() image.Image { return image.NewRGBA(image.Rect(0, 0, 2, 2)) }

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("finalize did not complete")
	}
}

func TestAdapterFinalizeDeliversBlob(t *testing.T) {
	enc := testsupport.NewRecordingEncoder()
	rec := &recorder{}
	a := encoding.NewAdapter(enc, cancel.New(), 100*time.Millisecond, rec.callbacks(), logging.NewNop())

	for i := 0; i < 3; i++ {
		if err := a.AddFrame(frame()); err != nil {
			t.Fatalf("AddFrame: %v", err)
		}
	}
	waitDone(t, a.Finalize(context.Background()))

	if rec.finished != 1 || string(rec.blob) != "GIF89a" {
		t.Fatalf("finished=%d blob=%q", rec.finished, rec.blob)
	}
	if len(rec.progress) != 2 || rec.progress[1] != 1 {
		t.Fatalf("unexpected progress %v", rec.progress)
	}
	for _, d := range enc.Delays() {
		if d != 100*time.Millisecond {
			t.Fatalf("unexpected delay %v", d)
		}
	}
	if a.Frames() != 3 {
		t.Fatalf("Frames() = %d", a.Frames())
	}
	if err := a.AddFrame(frame()); !errors.Is(err, encoding.ErrFrameRejected) {
		t.Fatalf("expected rejection after finalize, got %v", err)
	}
}

func TestAdapterRejectsFramesAfterAbort(t *testing.T) {
	token := cancel.New()
	enc := testsupport.NewRecordingEncoder()
	a := encoding.NewAdapter(enc, token, time.Millisecond, encoding.Callbacks{}, nil)
	_ = a.AddFrame(frame())
	token.Set()
	a.Abort()
	a.Abort()

	if err := a.AddFrame(frame()); !errors.Is(err, encoding.ErrFrameRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(enc.Frames()) != 1 {
		t.Fatalf("encoder received %d frames", len(enc.Frames()))
	}
	if enc.Aborts() != 1 {
		t.Fatalf("encoder aborted %d times, want 1", enc.Aborts())
	}
}

func TestAdapterSilentAfterAbortDuringRender(t *testing.T) {
	token := cancel.New()
	enc := testsupport.NewRecordingEncoder()
	enc.Gate = make(chan struct{})
	rec := &recorder{}
	a := encoding.NewAdapter(enc, token, time.Millisecond, rec.callbacks(), nil)
	_ = a.AddFrame(frame())

	done := a.Finalize(context.Background())
	token.Set()
	a.Abort()
	waitDone(t, done)

	if rec.finished != 0 || rec.failed != 0 {
		t.Fatalf("expected no terminal callbacks, finished=%d failed=%d", rec.finished, rec.failed)
	}
}

func TestAdapterReportsRenderFailure(t *testing.T) {
	enc := testsupport.NewRecordingEncoder()
	enc.FailRender = true
	rec := &recorder{}
	a := encoding.NewAdapter(enc, cancel.New(), time.Millisecond, rec.callbacks(), nil)
	waitDone(t, a.Finalize(context.Background()))

	if rec.failed != 1 {
		t.Fatalf("failed = %d", rec.failed)
	}
	if !errors.Is(rec.err, services.ErrEncoder) || !errors.Is(rec.err, testsupport.ErrRenderFailed) {
		t.Fatalf("unexpected error %v", rec.err)
	}
}

func TestAdapterFinalizeTwiceRendersOnce(t *testing.T) {
	enc := testsupport.NewRecordingEncoder()
	a := encoding.NewAdapter(enc, cancel.New(), time.Millisecond, encoding.Callbacks{}, nil)
	waitDone(t, a.Finalize(context.Background()))
	waitDone(t, a.Finalize(context.Background()))
	if enc.Renders() != 1 {
		t.Fatalf("renders = %d", enc.Renders())
	}
}
