package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipgif/internal/cancel"
	"clipgif/internal/capture"
	"clipgif/internal/encoding"
	"clipgif/internal/logging"
	"clipgif/internal/media"
	"clipgif/internal/progress"
	"clipgif/internal/services"
)

var (
	// ErrRunActive is returned by Start when concurrent starts are rejected
	// and a run is still in progress.
	ErrRunActive = errors.New("run already active")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver adds an event observer. May be given more than once.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithWorkers sets the encoder worker count.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithLoop sets the GIF loop count (0 forever, -1 once).
func WithLoop(n int) Option {
	return func(o *Orchestrator) { o.loop = n }
}

// WithRejectConcurrentStart makes Start fail with ErrRunActive instead of
// aborting the active run.
func WithRejectConcurrentStart() Option {
	return func(o *Orchestrator) { o.rejectConcurrent = true }
}

// Orchestrator runs captures against one surface. Only one run is active at
// a time.
type Orchestrator struct {
	surface          media.Surface
	factory          encoding.Factory
	logger           *slog.Logger
	observers        Observers
	workers          int
	loop             int
	rejectConcurrent bool

	mu      sync.Mutex
	current *run
	closed  bool
}

// New builds an orchestrator that draws onto surface and encodes with
// encoders from factory.
func New(surface media.Surface, factory encoding.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		surface: surface,
		factory: factory,
		logger:  logging.NewNop(),
		workers: encoding.DefaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

type run struct {
	id      string
	cfg     Configuration
	derived Derived
	token   *cancel.Token
	logger  *slog.Logger
	started time.Time
	done    chan struct{}

	// mu guards the fields below. It is never held while observers or the
	// encoder run.
	mu       sync.Mutex
	state    State
	terminal bool
	tracker  progress.Tracker
	adapter  *encoding.Adapter
	sampled  *logging.ProgressSampler

	// outbox holds observer calls in emission order. Whichever goroutine
	// finds delivering false drains it; others only append.
	outbox     []func()
	delivering bool
	idle       sync.Cond
}

// deliverLocked queues ev (if non-nil) and, unless another call is already
// delivering, runs every queued event in order with r.mu released. An
// observer that calls Abort from a callback therefore only queues Aborted,
// and it is delivered right after the callback returns. The caller holds
// r.mu; deliverLocked releases it.
func (r *run) deliverLocked(ev func()) {
	if ev != nil {
		r.outbox = append(r.outbox, ev)
	}
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.outbox) > 0 {
		next := r.outbox[0]
		r.outbox = r.outbox[1:]
		r.mu.Unlock()
		next()
		r.mu.Lock()
	}
	r.delivering = false
	r.idle.Broadcast()
	r.mu.Unlock()
}

// settle blocks until every queued event has been delivered.
func (r *run) settle() {
	r.mu.Lock()
	for r.delivering {
		r.idle.Wait()
	}
	r.deliverLocked(nil)
}

// State reports the state of the latest run, or Idle if none has started.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return Idle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start validates cfg and begins a run in the background. A run that is
// still active is aborted, and Start waits for it to unwind, unless the
// orchestrator was built with WithRejectConcurrentStart. Cancelling ctx
// aborts the new run.
func (o *Orchestrator) Start(ctx context.Context, cfg Configuration, src media.Source) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if src == nil || o.surface == nil || o.factory == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "start", "source, surface and encoder factory are required", nil)
	}
	if d := src.Duration(); d > 0 && cfg.Plan().End > d {
		return services.Wrap(services.ErrConfiguration, "pipeline", "start",
			"end "+cfg.Plan().End.String()+" is past source duration "+d.String(), nil)
	}

	o.mu.Lock()
	for {
		if o.closed {
			o.mu.Unlock()
			return services.Wrap(services.ErrConfiguration, "pipeline", "start", "", ErrClosed)
		}
		prev := o.current
		if prev == nil || isDone(prev) {
			break
		}
		if o.rejectConcurrent && !prev.isTerminal() {
			o.mu.Unlock()
			return services.Wrap(services.ErrConfiguration, "pipeline", "start", "run "+prev.id, ErrRunActive)
		}
		o.mu.Unlock()
		o.abortRun(prev)
		<-prev.done
		o.mu.Lock()
	}

	id := uuid.NewString()
	runCtx := services.WithRunID(ctx, id)
	clip, _ := services.ClipFromContext(ctx)
	r := &run{
		id:      id,
		cfg:     cfg,
		derived: cfg.Derive(),
		token:   cancel.New(),
		logger:  logging.WithContext(runCtx, o.logger),
		started: time.Now(),
		done:    make(chan struct{}),
		state:   Preparing,
		sampled: logging.NewProgressSampler(10),
	}
	r.idle.L = &r.mu
	info := RunInfo{ID: id, Clip: clip, Config: cfg, Derived: r.derived, StartedAt: r.started}
	// Queued before the run is published so an early Abort lands after it.
	r.outbox = append(r.outbox, func() { o.observers.Started(info) })
	o.current = r
	o.mu.Unlock()

	r.logger.Info("run started",
		logging.Float64("start_ms", cfg.StartMs),
		logging.Float64("end_ms", cfg.EndMs),
		logging.Float64("frame_rate", cfg.FrameRate),
		logging.Int("frames", r.derived.FrameCount),
		logging.Int("width", cfg.Width),
		logging.Int("height", cfg.Height),
		logging.Int("quality", r.derived.EncoderQuality),
	)
	r.mu.Lock()
	r.deliverLocked(nil)

	stop := context.AfterFunc(runCtx, func() { o.abortRun(r) })
	go func() {
		defer close(r.done)
		defer r.settle()
		defer stop()
		o.execute(runCtx, r, src)
	}()
	return nil
}

// Abort stops the active run. It is a no-op when nothing is running.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r != nil {
		o.abortRun(r)
	}
}

// Wait blocks until the latest run's goroutine has returned.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Close aborts any active run, waits for it, and rejects further starts.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.Abort()
	o.Wait()
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, src media.Source) {
	o.surface.Resize(r.cfg.Width, r.cfg.Height)
	if !src.Paused() {
		r.logger.Debug("pausing source", logging.Duration("position", src.CurrentTime()))
		if err := src.Pause(); err != nil {
			o.fail(r, services.Wrap(services.ErrSource, "pipeline", "pause source", "", err))
			return
		}
	}

	enc, err := o.factory(encoding.Options{
		Width:   r.cfg.Width,
		Height:  r.cfg.Height,
		Quality: r.derived.EncoderQuality,
		Loop:    o.loop,
		Workers: o.workers,
	})
	if err != nil {
		o.fail(r, services.Wrap(services.ErrEncoder, "pipeline", "create encoder", "", err))
		return
	}
	adapter := encoding.NewAdapter(enc, r.token, r.derived.FrameInterval, encoding.Callbacks{
		RenderProgress: func(ratio float64) { o.renderProgress(r, ratio) },
		Finished:       func(blob []byte) { o.complete(r, blob) },
		Failed:         func(err error) { o.fail(r, err) },
	}, r.logger)

	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		adapter.Abort()
		return
	}
	r.adapter = adapter
	r.state = Capturing
	r.mu.Unlock()

	sampler := capture.NewSampler(r.cfg.Plan(), src, o.surface, r.token, r.logger)
	completed, err := sampler.Run(ctx,
		func(f capture.Frame) error { return adapter.AddFrame(f.Image) },
		func(ratio float64) { o.captureProgress(r, ratio) },
	)
	switch {
	case err != nil:
		o.fail(r, err)
		return
	case !completed:
		o.abortRun(r)
		return
	}

	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	r.state = Finalizing
	r.mu.Unlock()
	r.logger.Debug("capture finished", logging.Int("frames", adapter.Frames()))

	<-adapter.Finalize(ctx)
}

// abortRun sets the run's token, aborts its encoder and emits Aborted unless
// the run already reached a terminal state. It is safe to call from inside an
// observer callback.
func (o *Orchestrator) abortRun(r *run) {
	r.token.Set()
	res, ok := o.finish(r, Aborted, OutcomeAborted, nil)
	if ok {
		r.logger.Info("run aborted", logging.Int("frames", res.Frames), logging.Duration("elapsed", res.Elapsed))
	}
}

func (o *Orchestrator) fail(r *run, err error) {
	r.token.Set()
	res, ok := o.finish(r, Failed, OutcomeFailed, err)
	if ok {
		logging.ErrorWithContext(r.logger, "run failed", string(services.FailureKind(err)),
			logging.Error(err),
			logging.Int("frames", res.Frames),
		)
	}
}

// finish moves r to an aborted or failed terminal state, releases its
// encoder and queues the terminal event. ok is false when r had already
// finished.
func (o *Orchestrator) finish(r *run, state State, outcome Outcome, err error) (res Result, ok bool) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return Result{}, false
	}
	adapter := r.adapter
	r.adapter = nil
	r.terminal = true
	r.state = state
	res = o.result(r, outcome)
	res.Err = err
	if adapter != nil {
		res.Frames = adapter.Frames()
	}
	notify := o.observers.Aborted
	if outcome == OutcomeFailed {
		notify = o.observers.Failed
	}
	r.outbox = append(r.outbox, func() { notify(res) })
	r.mu.Unlock()

	if adapter != nil {
		adapter.Abort()
	}
	r.mu.Lock()
	r.deliverLocked(nil)
	return res, true
}

func (o *Orchestrator) complete(r *run, blob []byte) {
	r.mu.Lock()
	if r.terminal || r.token.IsSet() {
		r.mu.Unlock()
		return
	}
	adapter := r.adapter
	r.adapter = nil
	r.terminal = true
	r.state = Completed
	res := o.result(r, OutcomeCompleted)
	res.Blob = blob
	res.Width = r.cfg.Width
	res.Height = r.cfg.Height
	if adapter != nil {
		res.Frames = adapter.Frames()
	}
	r.deliverLocked(func() { o.observers.Completed(res) })
	r.logger.Info("run completed",
		logging.Int("frames", res.Frames),
		logging.Int("bytes", len(blob)),
		logging.Duration("elapsed", res.Elapsed),
	)
}

func (o *Orchestrator) captureProgress(r *run, ratio float64) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	o.progressLocked(r, r.tracker.SetCapture(ratio))
}

func (o *Orchestrator) renderProgress(r *run, ratio float64) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	o.progressLocked(r, r.tracker.SetRender(ratio))
}

// progressLocked queues a Progress event. Like deliverLocked it releases
// r.mu.
func (o *Orchestrator) progressLocked(r *run, percent float64) {
	status := r.tracker.Status()
	if r.sampled.ShouldLog(percent, status.Label()) {
		r.logger.Debug("progress", logging.String("status", status.Label()), logging.Float64("percent", percent))
	}
	r.deliverLocked(func() { o.observers.Progress(status, percent) })
}

func (o *Orchestrator) result(r *run, outcome Outcome) Result {
	return Result{
		RunID:   r.id,
		Outcome: outcome,
		Elapsed: time.Since(r.started),
	}
}

func (r *run) isTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

func isDone(r *run) bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
