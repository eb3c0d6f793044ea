package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipgif/internal/batch"
	"clipgif/internal/config"
	"clipgif/internal/logging"
	"clipgif/internal/media/surface"
	"clipgif/internal/pipeline"
	"clipgif/internal/preflight"
	"clipgif/internal/services"
)

type captureOptions struct {
	startMs       float64
	endMs         float64
	frameRate     float64
	width         int
	height        int
	quality       int
	backend       string
	output        string
	skipPreflight bool
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture <video>",
		Short: "Capture a time range of a video as an animated GIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runCapture(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.startMs, "start", 0, "Clip start in milliseconds")
	flags.Float64Var(&opts.endMs, "end", 0, "Clip end in milliseconds (exclusive)")
	flags.Float64Var(&opts.frameRate, "fps", 0, "Frames per second (default from config)")
	flags.IntVar(&opts.width, "width", 0, "Output width in pixels (default from config)")
	flags.IntVar(&opts.height, "height", 0, "Output height in pixels (default from config)")
	flags.IntVar(&opts.quality, "quality", 0, "Quality from 1 (smallest) to 10 (best) (default from config)")
	flags.StringVar(&opts.backend, "encoder", "", "Encoder backend: gif or ffmpeg (default from config)")
	flags.StringVarP(&opts.output, "out", "o", "", "Output GIF path")
	flags.BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip dependency and resource checks")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (o captureOptions) configuration(cfg *config.Config) pipeline.Configuration {
	clip := pipeline.Configuration{
		FrameRate: o.frameRate,
		StartMs:   o.startMs,
		EndMs:     o.endMs,
		Width:     o.width,
		Height:    o.height,
		Quality:   o.quality,
	}
	if clip.FrameRate == 0 {
		clip.FrameRate = cfg.Capture.FrameRate
	}
	if clip.Width == 0 {
		clip.Width = cfg.Capture.Width
	}
	if clip.Height == 0 {
		clip.Height = cfg.Capture.Height
	}
	if clip.Quality == 0 {
		clip.Quality = cfg.Capture.Quality
	}
	return clip
}

func defaultOutputPath(dir, input string, clip pipeline.Configuration) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, fmt.Sprintf("%s-%.0f-%.0f.gif", base, clip.StartMs, clip.EndMs))
}

func (c *commandContext) runCapture(cmd *cobra.Command, input string, opts captureOptions) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	backend := strings.TrimSpace(opts.backend)
	if backend == "" {
		backend = cfg.Encoder.Backend
	}
	if backend != config.BackendGIF && backend != config.BackendFFmpeg {
		return services.Wrap(services.ErrConfiguration, "capture", "select encoder", fmt.Sprintf("unknown backend %q", backend), nil)
	}

	clip := opts.configuration(cfg)
	if err := clip.Validate(); err != nil {
		return err
	}
	derived := clip.Derive()

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	out := cmd.OutOrStdout()

	if !opts.skipPreflight {
		results := preflight.RunAll(runCtx, cfg, preflight.Clip{Frames: derived.FrameCount, Width: clip.Width, Height: clip.Height})
		if err := reportPreflight(out, results); err != nil {
			return err
		}
	}

	output := strings.TrimSpace(opts.output)
	if output == "" {
		output = defaultOutputPath(cfg.Paths.OutputDir, input, clip)
	}
	lock, err := batch.LockOutput(output)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "capture", "lock output", output, err)
	}
	defer func() { _ = lock.Release() }()

	src, err := c.openSource(runCtx, cfg, input, clip)
	if err != nil {
		return err
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	support, pipelineOpts, err := c.startSupport(runCtx, cfg, logger, backend)
	if err != nil {
		return err
	}
	defer support.close()

	catcher := newResultCatcher()
	pipelineOpts = append(pipelineOpts,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(newProgressPrinter(cmd.ErrOrStderr())),
		pipeline.WithObserver(catcher),
	)
	orch := pipeline.New(surface.NewCanvas(), c.encoderFactory(cfg, logger, backend), pipelineOpts...)
	defer orch.Close()

	clipName := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if err := orch.Start(services.WithClip(runCtx, clipName), clip, src); err != nil {
		return err
	}
	orch.Wait()

	res := catcher.result()
	switch res.Outcome {
	case pipeline.OutcomeCompleted:
		if err := lock.Write(res.Blob); err != nil {
			return services.Wrap(services.ErrConfiguration, "capture", "write output", output, err)
		}
		if support.store != nil {
			if err := support.store.SetOutput(context.WithoutCancel(runCtx), res.RunID, output); err != nil {
				logging.WarnWithContext(logger, "history output not recorded", "history_write",
					logging.Error(err),
					logging.String(logging.FieldRunID, res.RunID),
				)
			}
		}
		fmt.Fprintf(out, "Wrote %s (%d frames, %dx%d, %s) in %s\n",
			output, res.Frames, res.Width, res.Height,
			humanize.IBytes(uint64(len(res.Blob))), res.Elapsed.Round(time.Millisecond))
		return nil
	case pipeline.OutcomeAborted:
		return services.Wrap(services.ErrCancelled, "capture", "run", fmt.Sprintf("aborted after %d frames", res.Frames), nil)
	case pipeline.OutcomeFailed:
		return res.Err
	default:
		return services.Wrap(services.ErrCancelled, "capture", "run", "run ended without a result", nil)
	}
}

// reportPreflight prints warnings and returns an error listing the blocking
// checks, if any.
func reportPreflight(out io.Writer, results []preflight.Result) error {
	for _, r := range results {
		if r.Warning && !r.Passed {
			fmt.Fprintln(out, renderStatusLine(r.Name, statusWarn, r.Detail, false))
		}
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return services.Wrap(services.ErrConfiguration, "capture", "preflight", strings.Join(parts, "; "), nil)
}
