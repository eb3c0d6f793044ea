package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"clipgif/internal/config"
	"clipgif/internal/history"
	"clipgif/internal/logging"
	"clipgif/internal/metrics"
	"clipgif/internal/pipeline"
	"clipgif/internal/progress"
)

// runSupport bundles the observers every capturing command attaches.
type runSupport struct {
	store     *history.Store
	recorder  *history.Recorder
	collector *metrics.Collector
	stop      context.CancelFunc
}

func (c *commandContext) startSupport(ctx context.Context, cfg *config.Config, logger *slog.Logger, backend string) (*runSupport, []pipeline.Option, error) {
	s := &runSupport{stop: func() {}}
	var opts []pipeline.Option

	if store := c.openHistory(ctx, cfg, logger); store != nil {
		s.store = store
		s.recorder = history.NewRecorder(store, backend, logger)
		opts = append(opts, pipeline.WithObserver(s.recorder))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.collector = metrics.NewCollector(registry)
	opts = append(opts, pipeline.WithObserver(s.collector))

	if cfg.Metrics.Listen != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		addr, _, err := metrics.Serve(metricsCtx, cfg.Metrics.Listen, registry, logger)
		if err != nil {
			cancel()
			s.close()
			return nil, nil, fmt.Errorf("start metrics server: %w", err)
		}
		s.stop = cancel
		logger.Info("metrics available", logging.String("url", "http://"+addr+"/metrics"))
	}

	opts = append(opts,
		pipeline.WithWorkers(cfg.Encoder.Workers),
		pipeline.WithLoop(cfg.Encoder.Loop),
	)
	if cfg.Pipeline.RejectConcurrentStart {
		opts = append(opts, pipeline.WithRejectConcurrentStart())
	}
	return s, opts, nil
}

func (s *runSupport) close() {
	if s == nil {
		return
	}
	s.stop()
	if s.store != nil {
		_ = s.store.Close()
	}
}

// progressPrinter renders run progress: a rewritten line on a terminal,
// sampled lines otherwise.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	sampler *logging.ProgressSampler

	mu     sync.Mutex
	active bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:     out,
		tty:     isTerminal(out),
		sampler: logging.NewProgressSampler(25),
	}
}

func (p *progressPrinter) Started(pipeline.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampler.Reset()
	p.active = false
}

func (p *progressPrinter) Progress(status progress.Status, percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty {
		fmt.Fprintf(p.out, "\r%-18s %3.0f%%", status.String(), percent)
		p.active = true
		return
	}
	if p.sampler.ShouldLog(percent, status.Label()) {
		fmt.Fprintf(p.out, "%s %3.0f%%\n", status.String(), percent)
	}
}

func (p *progressPrinter) Completed(pipeline.Result) { p.endLine() }

func (p *progressPrinter) Aborted(pipeline.Result) { p.endLine() }

func (p *progressPrinter) Failed(pipeline.Result) { p.endLine() }

func (p *progressPrinter) endLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.active {
		fmt.Fprintln(p.out)
	}
	p.active = false
}

// resultCatcher keeps the latest terminal result.
type resultCatcher struct {
	pipeline.ObserverFuncs

	mu  sync.Mutex
	res pipeline.Result
}

func newResultCatcher() *resultCatcher {
	c := &resultCatcher{}
	store := func(res pipeline.Result) {
		c.mu.Lock()
		c.res = res
		c.mu.Unlock()
	}
	c.ObserverFuncs = pipeline.ObserverFuncs{OnCompleted: store, OnAborted: store, OnFailed: store}
	return c
}

func (c *resultCatcher) result() pipeline.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
