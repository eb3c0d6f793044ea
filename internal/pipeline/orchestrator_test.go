package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image/gif"
	"sync"
	"testing"
	"time"

	"clipgif/internal/encoding"
	"clipgif/internal/encoding/gifenc"
	"clipgif/internal/logging"
	"clipgif/internal/media/surface"
	"clipgif/internal/pipeline"
	"clipgif/internal/progress"
	"clipgif/internal/services"
	"clipgif/internal/testsupport"
)

type recorder struct {
	mu        sync.Mutex
	events    []string
	started   []pipeline.RunInfo
	percents  []float64
	statuses  []progress.Status
	completed []pipeline.Result
	aborted   []pipeline.Result
	failed    []pipeline.Result
	rendering chan struct{}
	once      sync.Once
}

func newRecorder() *recorder {
	return &recorder{rendering: make(chan struct{})}
}

func (r *recorder) Started(info pipeline.RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "started")
	r.started = append(r.started, info)
}

func (r *recorder) Progress(status progress.Status, percent float64) {
	r.mu.Lock()
	r.percents = append(r.percents, percent)
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	if percent > progress.CaptureWeight*100 {
		r.once.Do(func() { close(r.rendering) })
	}
}

func (r *recorder) Completed(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "completed")
	r.completed = append(r.completed, res)
}

func (r *recorder) Aborted(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "aborted")
	r.aborted = append(r.aborted, res)
}

func (r *recorder) Failed(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "failed")
	r.failed = append(r.failed, res)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.aborted) + len(r.failed)
}

func newOrchestrator(factory encoding.Factory, rec *recorder, opts ...pipeline.Option) *pipeline.Orchestrator {
	opts = append([]pipeline.Option{pipeline.WithObserver(rec), pipeline.WithLogger(logging.NewNop())}, opts...)
	return pipeline.New(surface.NewCanvas(), factory, opts...)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestOrchestratorCapturesTenFramesAtTenHertz(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)
	src := testsupport.NewFakeSource()

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	want := []time.Duration{0, 100, 200, 300, 400, 500, 600, 700, 800, 900}
	seeks := src.Seeks()
	if len(seeks) != len(want) {
		t.Fatalf("seeks = %v", seeks)
	}
	for i, at := range seeks {
		if at != want[i]*time.Millisecond {
			t.Fatalf("seek %d at %s, want %s", i, at, want[i]*time.Millisecond)
		}
	}
	if src.MaxInFlight() != 1 {
		t.Fatalf("max in-flight seeks = %d, want 1", src.MaxInFlight())
	}
	if !src.Paused() {
		t.Fatal("source was not paused")
	}

	enc := factory.Last()
	if enc.Options.Quality != 16 || enc.Options.Width != 16 || enc.Options.Height != 9 {
		t.Fatalf("encoder options = %+v", enc.Options)
	}
	if len(enc.Frames()) != 10 {
		t.Fatalf("frames = %d, want 10", len(enc.Frames()))
	}
	for _, d := range enc.Delays() {
		if d != 100*time.Millisecond {
			t.Fatalf("delay = %s, want 100ms", d)
		}
	}
	if b := enc.Frames()[0].Bounds(); b.Dx() != 16 || b.Dy() != 9 {
		t.Fatalf("frame bounds = %v", b)
	}

	if got := rec.Events(); len(got) != 2 || got[0] != "started" || got[1] != "completed" {
		t.Fatalf("events = %v", got)
	}
	res := rec.completed[0]
	if string(res.Blob) != "GIF89a" || res.Width != 16 || res.Height != 9 || res.Frames != 10 {
		t.Fatalf("result = %+v", res)
	}
	if res.RunID == "" || res.RunID != rec.started[0].ID {
		t.Fatalf("run id mismatch: %q vs %q", res.RunID, rec.started[0].ID)
	}
	if orch.State() != pipeline.Completed {
		t.Fatalf("state = %s", orch.State())
	}

	last := -1.0
	sawRendering := false
	for i, p := range rec.percents {
		if p < last {
			t.Fatalf("progress went backwards at %d: %v", i, rec.percents)
		}
		last = p
		if rec.statuses[i] == progress.Rendering {
			sawRendering = true
		} else if sawRendering {
			t.Fatalf("status returned to gathering: %v", rec.statuses)
		}
	}
	if last != 100 {
		t.Fatalf("final progress = %v, want 100", last)
	}
	if rec.statuses[0] != progress.Gathering || !sawRendering {
		t.Fatalf("statuses = %v", rec.statuses)
	}
}

func TestOrchestratorAbortMidCapture(t *testing.T) {
	var orch *pipeline.Orchestrator
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		e.AfterAdd = func(count int) {
			if count == 5 {
				orch.Abort()
			}
		}
	}}
	rec := newRecorder()
	orch = newOrchestrator(factory.New, rec)
	src := testsupport.NewFakeSource()

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	enc := factory.Last()
	if len(enc.Frames()) != 5 {
		t.Fatalf("frames = %d, want 5", len(enc.Frames()))
	}
	if len(src.Seeks()) != 5 {
		t.Fatalf("seeks after abort = %v", src.Seeks())
	}
	if enc.Renders() != 0 {
		t.Fatalf("render ran %d times after abort", enc.Renders())
	}
	if enc.Aborts() != 1 {
		t.Fatalf("encoder aborted %d times, want 1", enc.Aborts())
	}
	if got := rec.Events(); len(got) != 2 || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if orch.State() != pipeline.Aborted {
		t.Fatalf("state = %s", orch.State())
	}
	// Abort with no active run is a no-op.
	orch.Abort()
	if rec.terminalCount() != 1 {
		t.Fatalf("terminal events = %d", rec.terminalCount())
	}
}

func TestOrchestratorAbortBeforeFirstFrame(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)

	seeking := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src := testsupport.NewFakeSource()
	src.BeforeComplete = func(time.Duration) {
		once.Do(func() { close(seeking) })
		<-release
	}

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, seeking, "first seek")
	orch.Abort()
	if got := rec.Events(); len(got) != 2 || got[1] != "aborted" {
		t.Fatalf("events right after abort = %v", got)
	}
	close(release)
	orch.Wait()

	if len(src.Seeks()) != 1 {
		t.Fatalf("seeks = %v, want only the in-flight one", src.Seeks())
	}
	if n := len(factory.Last().Frames()); n != 0 {
		t.Fatalf("frames = %d, want 0", n)
	}
	if rec.terminalCount() != 1 {
		t.Fatalf("terminal events = %d", rec.terminalCount())
	}
}

func TestOrchestratorAbortDuringFinalize(t *testing.T) {
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		e.Gate = make(chan struct{})
	}}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)

	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, rec.rendering, "render progress")
	if orch.State() != pipeline.Finalizing {
		t.Fatalf("state = %s, want finalizing", orch.State())
	}
	orch.Abort()
	orch.Wait()

	if got := rec.Events(); len(got) != 2 || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if len(rec.completed) != 0 || len(rec.failed) != 0 {
		t.Fatal("abort during finalize produced another terminal event")
	}
	if factory.Last().Aborts() != 1 {
		t.Fatalf("aborts = %d", factory.Last().Aborts())
	}
}

func TestOrchestratorIdenticalRunsProduceIdenticalGIFs(t *testing.T) {
	rec := newRecorder()
	orch := newOrchestrator(gifenc.NewFactory(logging.NewNop()), rec, pipeline.WithWorkers(3))
	defer orch.Close()

	for i := 0; i < 2; i++ {
		if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		orch.Wait()
	}
	if len(rec.completed) != 2 {
		t.Fatalf("events = %v", rec.Events())
	}
	first, second := rec.completed[0].Blob, rec.completed[1].Blob
	if len(first) == 0 || !bytes.Equal(first, second) {
		t.Fatal("identical runs produced different output")
	}
	if rec.completed[0].RunID == rec.completed[1].RunID {
		t.Fatal("runs shared an id")
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Image) != 10 {
		t.Fatalf("decoded frames = %d", len(decoded.Image))
	}
	for _, d := range decoded.Delay {
		if d != 10 {
			t.Fatalf("delay = %d centiseconds, want 10", d)
		}
	}
	if decoded.Config.Width != 16 || decoded.Config.Height != 9 {
		t.Fatalf("size = %dx%d", decoded.Config.Width, decoded.Config.Height)
	}
}

func TestOrchestratorSecondStartAbortsFirst(t *testing.T) {
	var builds int
	var mu sync.Mutex
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		mu.Lock()
		defer mu.Unlock()
		builds++
		if builds == 1 {
			e.Gate = make(chan struct{})
		}
	}}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)

	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitFor(t, rec.rendering, "first run rendering")
	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	orch.Wait()

	want := []string{"started", "aborted", "started", "completed"}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if rec.aborted[0].RunID != rec.started[0].ID || rec.completed[0].RunID != rec.started[1].ID {
		t.Fatal("terminal events attributed to the wrong run")
	}
	if encs := factory.Encoders(); len(encs) != 2 || encs[0].Aborts() != 1 || encs[1].Aborts() != 0 {
		t.Fatal("unexpected encoder abort counts")
	}
}

func TestOrchestratorRejectsConcurrentStart(t *testing.T) {
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		e.Gate = make(chan struct{})
	}}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec, pipeline.WithRejectConcurrentStart())

	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, rec.rendering, "rendering")
	err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource())
	if !errors.Is(err, pipeline.ErrRunActive) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("second Start error = %v", err)
	}
	if orch.State() != pipeline.Finalizing {
		t.Fatalf("state = %s", orch.State())
	}
	if err := orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rec.Events(); len(got) != 2 || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); !errors.Is(err, pipeline.ErrClosed) {
		t.Fatalf("Start after Close = %v", err)
	}
}

func TestOrchestratorSeekFailure(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)
	src := testsupport.NewFakeSource()
	src.FailAt = map[time.Duration]bool{300 * time.Millisecond: true}

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	if len(rec.failed) != 1 || rec.terminalCount() != 1 {
		t.Fatalf("events = %v", rec.Events())
	}
	res := rec.failed[0]
	if !errors.Is(res.Err, services.ErrSource) || !errors.Is(res.Err, testsupport.ErrSeekFailed) {
		t.Fatalf("error = %v", res.Err)
	}
	if services.FailureKind(res.Err) != services.KindSource {
		t.Fatalf("kind = %s", services.FailureKind(res.Err))
	}
	if res.Frames != 3 {
		t.Fatalf("frames before failure = %d, want 3", res.Frames)
	}
	if factory.Last().Aborts() != 1 {
		t.Fatal("encoder was not released on failure")
	}
	if orch.State() != pipeline.Failed {
		t.Fatalf("state = %s", orch.State())
	}
}

func TestOrchestratorRenderFailure(t *testing.T) {
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		e.FailRender = true
	}}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)

	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	if len(rec.failed) != 1 || rec.terminalCount() != 1 {
		t.Fatalf("events = %v", rec.Events())
	}
	if err := rec.failed[0].Err; !errors.Is(err, services.ErrEncoder) || !errors.Is(err, testsupport.ErrRenderFailed) {
		t.Fatalf("error = %v", err)
	}
}

func TestOrchestratorEncoderFactoryFailure(t *testing.T) {
	boom := errors.New("no encoder")
	rec := newRecorder()
	orch := newOrchestrator(func(encoding.Options) (encoding.Encoder, error) { return nil, boom }, rec)

	if err := orch.Start(context.Background(), validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()
	if len(rec.failed) != 1 || !errors.Is(rec.failed[0].Err, boom) || !errors.Is(rec.failed[0].Err, services.ErrEncoder) {
		t.Fatalf("events = %v failed = %+v", rec.Events(), rec.failed)
	}
}

func TestOrchestratorRejectsInvalidConfiguration(t *testing.T) {
	rec := newRecorder()
	orch := newOrchestrator((&testsupport.RecordingFactory{}).New, rec)

	cfg := validConfig()
	cfg.EndMs = cfg.StartMs
	if err := orch.Start(context.Background(), cfg, testsupport.NewFakeSource()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Start = %v", err)
	}

	short := testsupport.NewFakeSource()
	short.Length = 500 * time.Millisecond
	if err := orch.Start(context.Background(), validConfig(), short); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Start past duration = %v", err)
	}

	if orch.State() != pipeline.Idle || len(rec.Events()) != 0 {
		t.Fatalf("state = %s events = %v", orch.State(), rec.Events())
	}
}

func TestOrchestratorContextCancelAborts(t *testing.T) {
	ctx, cancelRun := context.WithCancel(context.Background())
	factory := &testsupport.RecordingFactory{Configure: func(e *testsupport.RecordingEncoder) {
		e.AfterAdd = func(count int) {
			if count == 2 {
				cancelRun()
			}
		}
	}}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)

	if err := orch.Start(ctx, validConfig(), testsupport.NewFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	if got := rec.Events(); len(got) != 2 || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if n := len(factory.Last().Frames()); n < 2 || n > 3 {
		t.Fatalf("frames = %d", n)
	}
}

func waitRun(t *testing.T, orch *pipeline.Orchestrator) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	waitFor(t, done, "run to finish")
}

func TestOrchestratorAbortFromProgressObserver(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	var orch *pipeline.Orchestrator
	ticks := 0
	canceller := pipeline.ObserverFuncs{OnProgress: func(progress.Status, float64) {
		ticks++
		if ticks == 5 {
			orch.Abort()
		}
	}}
	orch = newOrchestrator(factory.New, rec, pipeline.WithObserver(canceller))
	src := testsupport.NewFakeSource()

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRun(t, orch)

	if got := rec.Events(); len(got) != 2 || got[0] != "started" || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if rec.aborted[0].Frames != 5 {
		t.Fatalf("aborted result frames = %d, want 5", rec.aborted[0].Frames)
	}
	enc := factory.Last()
	if len(enc.Frames()) != 5 || len(src.Seeks()) != 5 {
		t.Fatalf("frames = %d seeks = %v, want 5 of each", len(enc.Frames()), src.Seeks())
	}
	if enc.Renders() != 0 || enc.Aborts() != 1 {
		t.Fatalf("renders = %d aborts = %d", enc.Renders(), enc.Aborts())
	}
	if orch.State() != pipeline.Aborted {
		t.Fatalf("state = %s", orch.State())
	}
}

func TestOrchestratorAbortFromStartedObserver(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	var orch *pipeline.Orchestrator
	orch = newOrchestrator(factory.New, rec, pipeline.WithObserver(pipeline.ObserverFuncs{
		OnStarted: func(pipeline.RunInfo) { orch.Abort() },
	}))
	src := testsupport.NewFakeSource()

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRun(t, orch)

	if got := rec.Events(); len(got) != 2 || got[0] != "started" || got[1] != "aborted" {
		t.Fatalf("events = %v", got)
	}
	if len(src.Seeks()) != 0 {
		t.Fatalf("seeks after abort = %v", src.Seeks())
	}
	if rec.terminalCount() != 1 {
		t.Fatalf("terminal events = %d", rec.terminalCount())
	}
}

func TestOrchestratorPauseFailure(t *testing.T) {
	factory := &testsupport.RecordingFactory{}
	rec := newRecorder()
	orch := newOrchestrator(factory.New, rec)
	busy := errors.New("decoder busy")
	src := testsupport.NewFakeSource()
	src.PauseErr = busy

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRun(t, orch)

	if len(rec.failed) != 1 || rec.terminalCount() != 1 {
		t.Fatalf("events = %v", rec.Events())
	}
	if err := rec.failed[0].Err; !errors.Is(err, services.ErrSource) || !errors.Is(err, busy) {
		t.Fatalf("error = %v", err)
	}
	if len(src.Seeks()) != 0 || factory.Last() != nil {
		t.Fatal("capture continued after pause failed")
	}
	if orch.State() != pipeline.Failed {
		t.Fatalf("state = %s", orch.State())
	}
}

func TestOrchestratorLeavesPausedSourceAlone(t *testing.T) {
	rec := newRecorder()
	orch := newOrchestrator((&testsupport.RecordingFactory{}).New, rec)
	src := testsupport.NewFakeSource()
	if err := src.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if err := orch.Start(context.Background(), validConfig(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRun(t, orch)

	if src.Pauses() != 1 {
		t.Fatalf("Pause called %d times, want only the caller's", src.Pauses())
	}
	if len(rec.completed) != 1 {
		t.Fatalf("events = %v", rec.Events())
	}
}
