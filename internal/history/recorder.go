package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clipgif/internal/logging"
	"clipgif/internal/pipeline"
	"clipgif/internal/progress"
	"clipgif/internal/services"
)

const writeTimeout = 5 * time.Second

// Recorder is a pipeline.Observer that writes each run to a Store. Write
// failures are logged and never affect the run.
type Recorder struct {
	store   *Store
	backend string
	logger  *slog.Logger

	mu     sync.Mutex
	runID  string
	failed bool
}

// NewRecorder builds a recorder tagging rows with the encoder backend name.
func NewRecorder(store *Store, backend string, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "history"),
	}
}

func (r *Recorder) Started(info pipeline.RunInfo) {
	r.mu.Lock()
	r.runID = info.ID
	r.mu.Unlock()

	err := r.write(func(ctx context.Context) error {
		return r.store.Begin(ctx, Run{
			RunID:     info.ID,
			Clip:      info.Clip,
			Backend:   r.backend,
			StartMs:   info.Config.StartMs,
			EndMs:     info.Config.EndMs,
			FrameRate: info.Config.FrameRate,
			Width:     info.Config.Width,
			Height:    info.Config.Height,
			Quality:   info.Config.Quality,
			StartedAt: info.StartedAt,
		})
	})
	r.report("begin", info.ID, err)
}

func (r *Recorder) Progress(progress.Status, float64) {}

func (r *Recorder) Completed(res pipeline.Result) {
	r.finish(res, Outcome{Status: StatusCompleted, Frames: res.Frames, Bytes: len(res.Blob)})
}

func (r *Recorder) Aborted(res pipeline.Result) {
	r.finish(res, Outcome{Status: StatusAborted, FailureKind: string(services.KindCancelled), Frames: res.Frames})
}

func (r *Recorder) Failed(res pipeline.Result) {
	out := Outcome{Status: StatusFailed, FailureKind: string(services.FailureKind(res.Err)), Frames: res.Frames}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	r.finish(res, out)
}

// LastRunID returns the id of the most recently started run.
func (r *Recorder) LastRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Recorder) finish(res pipeline.Result, out Outcome) {
	err := r.write(func(ctx context.Context) error {
		return r.store.Finish(ctx, res.RunID, out)
	})
	r.report("finish", res.RunID, err)
}

func (r *Recorder) write(fn func(context.Context) error) error {
	if r == nil || r.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return fn(ctx)
}

func (r *Recorder) report(op, runID string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()
	logging.WarnWithContext(r.logger, "history write failed", "history_write",
		logging.String("operation", op),
		logging.String(logging.FieldRunID, runID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the history_db path and disk space"),
	)
}

// Healthy reports whether every write so far succeeded.
func (r *Recorder) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.failed
}
