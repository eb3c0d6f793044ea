package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipgif/internal/batch"
	"clipgif/internal/config"
	"clipgif/internal/logging"
	"clipgif/internal/media"
	"clipgif/internal/media/surface"
	"clipgif/internal/pipeline"
	"clipgif/internal/preflight"
	"clipgif/internal/services"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var backend string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Capture every clip listed in a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if backend == "" {
				backend = cfg.Encoder.Backend
			}
			if outputDir == "" {
				outputDir = cfg.Paths.OutputDir
			}

			manifest, err := batch.Load(args[0], manifestDefaults(cfg))
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if !skipPreflight {
				if err := reportPreflight(cmd.OutOrStdout(), preflight.RunAll(runCtx, cfg, largestClip(manifest))); err != nil {
					return err
				}
			}

			support, opts, err := ctx.startSupport(runCtx, cfg, logger, backend)
			if err != nil {
				return err
			}
			defer support.close()
			opts = append(opts, pipeline.WithObserver(newProgressPrinter(cmd.ErrOrStderr())))

			open := func(openCtx context.Context, input string, clip pipeline.Configuration) (media.Source, error) {
				return ctx.openSource(openCtx, cfg, input, clip)
			}
			runner := batch.NewRunner(surface.NewCanvas(), ctx.encoderFactory(cfg, logger, backend), open, logger, opts...)
			defer runner.Orchestrator().Close()

			outcomes, runErr := runner.Run(runCtx, manifest, outputDir)
			if support.store != nil {
				for _, o := range outcomes {
					if !o.Succeeded() {
						continue
					}
					if err := support.store.SetOutput(context.WithoutCancel(runCtx), o.Result.RunID, o.Output); err != nil {
						logging.WarnWithContext(logger, "history output not recorded", "history_write",
							logging.Error(err),
							logging.String(logging.FieldRunID, o.Result.RunID),
						)
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderBatchTable(outcomes))
			summary := batch.Summarize(outcomes)
			fmt.Fprintf(cmd.OutOrStdout(), "%d completed, %d aborted, %d failed in %s\n",
				summary.Completed, summary.Aborted, summary.Failed, summary.Elapsed.Round(time.Millisecond))

			if runErr != nil {
				return runErr
			}
			if summary.Failed > 0 || summary.Aborted > 0 {
				return services.Wrap(services.ErrValidation, "batch", "run",
					fmt.Sprintf("%d of %d clips did not complete", summary.Failed+summary.Aborted, len(outcomes)), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "out-dir", "o", "", "Directory for clips without an explicit output (default from config)")
	cmd.Flags().StringVar(&backend, "encoder", "", "Encoder backend: gif or ffmpeg (default from config)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip dependency and resource checks")
	return cmd
}

func manifestDefaults(cfg *config.Config) batch.Defaults {
	return batch.Defaults{
		FrameRate: cfg.Capture.FrameRate,
		Width:     cfg.Capture.Width,
		Height:    cfg.Capture.Height,
		Quality:   cfg.Capture.Quality,
	}
}

// largestClip returns the resource footprint of the most demanding clip, since
// clips run one at a time.
func largestClip(m *batch.Manifest) preflight.Clip {
	var worst preflight.Clip
	for _, c := range m.Clips {
		clip := m.Configuration(c)
		candidate := preflight.Clip{Frames: clip.Derive().FrameCount, Width: clip.Width, Height: clip.Height}
		if preflight.EstimateMemory(candidate) > preflight.EstimateMemory(worst) {
			worst = candidate
		}
	}
	return worst
}

func renderBatchTable(outcomes []batch.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		outcome := o.Result.Outcome.String()
		detail := o.Output
		switch {
		case o.Err != nil:
			outcome = "failed"
			detail = o.Err.Error()
		case o.Result.Err != nil:
			detail = o.Result.Err.Error()
		case !o.Succeeded():
			detail = ""
		}
		size := ""
		if o.Succeeded() {
			size = humanize.IBytes(uint64(len(o.Result.Blob)))
		}
		rows = append(rows, []string{
			o.Clip.Name,
			outcome,
			strconv.Itoa(o.Result.Frames),
			size,
			o.Result.Elapsed.Round(time.Millisecond).String(),
			detail,
		})
	}
	return renderTable(
		[]string{"Clip", "Outcome", "Frames", "Size", "Elapsed", "Output"},
		rows,
		2, 3, 4,
	)
}
