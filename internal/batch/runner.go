package batch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipgif/internal/encoding"
	"clipgif/internal/logging"
	"clipgif/internal/media"
	"clipgif/internal/pipeline"
	"clipgif/internal/progress"
	"clipgif/internal/services"
)

// SourceOpener opens the video source for a clip input path.
type SourceOpener func(ctx context.Context, input string, cfg pipeline.Configuration) (media.Source, error)

// Outcome is the result of one manifest clip.
type Outcome struct {
	Clip   Clip
	Output string
	Result pipeline.Result
	// Err is set when the clip never started (bad input) or its output could
	// not be written.
	Err error
}

// Succeeded reports whether the clip completed and was written.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result.Outcome == pipeline.OutcomeCompleted
}

// Runner captures manifest clips sequentially on one orchestrator, so the
// surface is reused and every clip runs with a fresh cancellation token.
type Runner struct {
	orch   *pipeline.Orchestrator
	open   SourceOpener
	logger *slog.Logger

	mu   sync.Mutex
	last pipeline.Result
}

// NewRunner builds a runner. opts are passed to the orchestrator after the
// runner's own observer.
func NewRunner(surface media.Surface, factory encoding.Factory, open SourceOpener, logger *slog.Logger, opts ...pipeline.Option) *Runner {
	r := &Runner{
		open:   open,
		logger: logging.NewComponentLogger(logger, "batch"),
	}
	all := append([]pipeline.Option{pipeline.WithObserver(r), pipeline.WithLogger(logger)}, opts...)
	r.orch = pipeline.New(surface, factory, all...)
	return r
}

// Orchestrator exposes the underlying orchestrator, mainly so callers can
// abort from a signal handler.
func (r *Runner) Orchestrator() *pipeline.Orchestrator { return r.orch }

// Run captures every clip in order and writes completed GIFs. It stops early
// when ctx is cancelled; the remaining clips are not reported. Every run of
// the batch logs the same batch_id.
func (r *Runner) Run(ctx context.Context, m *Manifest, outputDir string) ([]Outcome, error) {
	ctx = services.WithBatchID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, r.logger)
	outcomes := make([]Outcome, 0, len(m.Clips))
	for i, clip := range m.Clips {
		if err := ctx.Err(); err != nil {
			return outcomes, services.Wrap(services.ErrCancelled, "batch", "run", "", err)
		}
		out := r.runClip(ctx, m, clip, outputDir)
		outcomes = append(outcomes, out)

		attrs := []logging.Attr{
			logging.String(logging.FieldClip, clip.Name),
			logging.Int("index", i+1),
			logging.Int("total", len(m.Clips)),
			logging.String("outcome", out.Result.Outcome.String()),
		}
		if out.Err != nil || out.Result.Err != nil {
			err := out.Err
			if err == nil {
				err = out.Result.Err
			}
			logging.WarnWithContext(logger, "clip did not complete", string(services.FailureKind(err)),
				append(attrs, logging.Error(err))...)
			continue
		}
		logger.Info("clip finished", logging.Args(append(attrs, logging.String("output", out.Output))...)...)
	}
	if err := ctx.Err(); err != nil {
		return outcomes, services.Wrap(services.ErrCancelled, "batch", "run", "", err)
	}
	return outcomes, nil
}

func (r *Runner) runClip(ctx context.Context, m *Manifest, clip Clip, outputDir string) Outcome {
	out := Outcome{Clip: clip, Output: m.OutputPath(clip, outputDir)}
	cfg := m.Configuration(clip)

	lock, err := LockOutput(out.Output)
	if err != nil {
		out.Err = services.Wrap(services.ErrConfiguration, "batch", "lock output", out.Output, err)
		return out
	}
	defer func() { _ = lock.Release() }()

	src, err := r.open(ctx, m.InputPath(clip), cfg)
	if err != nil {
		out.Err = err
		return out
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	runCtx := services.WithClip(ctx, clip.Name)
	if err := r.orch.Start(runCtx, cfg, src); err != nil {
		out.Err = err
		return out
	}
	r.orch.Wait()

	out.Result = r.lastResult()
	if out.Result.Outcome == pipeline.OutcomeCompleted {
		if err := lock.Write(out.Result.Blob); err != nil {
			out.Err = err
		}
	}
	return out
}

func (r *Runner) lastResult() pipeline.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) record(res pipeline.Result) {
	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
}

func (r *Runner) Started(pipeline.RunInfo) {
	r.record(pipeline.Result{})
}

func (r *Runner) Progress(progress.Status, float64) {}

func (r *Runner) Completed(res pipeline.Result) { r.record(res) }

func (r *Runner) Aborted(res pipeline.Result) { r.record(res) }

func (r *Runner) Failed(res pipeline.Result) { r.record(res) }

// Summary counts outcomes by class.
type Summary struct {
	Completed int
	Aborted   int
	Failed    int
	Elapsed   time.Duration
}

// Summarize folds outcomes into a Summary. Clips that never started count as
// failed.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Elapsed += o.Result.Elapsed
		switch {
		case o.Succeeded():
			s.Completed++
		case o.Err == nil && o.Result.Outcome == pipeline.OutcomeAborted:
			s.Aborted++
		default:
			s.Failed++
		}
	}
	return s
}
