package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clipgif/internal/deps"
	"clipgif/internal/history"
	"clipgif/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, external tools and resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			emit := func(lines ...string) {
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
			}

			emit(renderSectionHeader("Configuration", colorize)...)
			emit(
				renderStatusLine("Encoder", statusInfo, fmt.Sprintf("%s (%d workers)", cfg.Encoder.Backend, cfg.Encoder.Workers), colorize),
				renderStatusLine("Default clip", statusInfo, fmt.Sprintf("%dx%d @ %g fps, quality %d",
					cfg.Capture.Width, cfg.Capture.Height, cfg.Capture.FrameRate, cfg.Capture.Quality), colorize),
				renderStatusLine("Reject concurrent", statusInfo, yesNo(cfg.Pipeline.RejectConcurrentStart), colorize),
			)
			if cfg.Metrics.Listen != "" {
				emit(renderStatusLine("Metrics", statusInfo, cfg.Metrics.Listen, colorize))
			}

			// One second of the default clip is enough to report headroom.
			clip := preflight.Clip{Frames: int(cfg.Capture.FrameRate + 0.5), Width: cfg.Capture.Width, Height: cfg.Capture.Height}
			results := preflight.RunAll(cmd.Context(), cfg, clip)

			emit("")
			emit(renderSectionHeader("Dependencies", colorize)...)
			for _, status := range preflight.CheckSystemDeps(cfg) {
				if !status.Available {
					emit(renderStatusLine(status.Name, statusError, status.Detail, colorize))
					continue
				}
				version, err := deps.Version(cmd.Context(), status.Command)
				if err != nil {
					emit(renderStatusLine(status.Name, statusWarn, status.Path+" (version unknown)", colorize))
					continue
				}
				emit(renderStatusLine(status.Name, statusOK, fmt.Sprintf("%s (%s)", version, status.Path), colorize))
			}

			emit("")
			emit(renderSectionHeader("Directories and resources", colorize)...)
			for _, r := range results {
				if r.Name == "FFmpeg" || r.Name == "FFprobe" {
					continue
				}
				kind := statusOK
				switch {
				case r.Blocking():
					kind = statusError
				case !r.Passed:
					kind = statusWarn
				}
				emit(renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if strings.TrimSpace(cfg.Paths.HistoryDB) != "" {
				emit("")
				emit(renderSectionHeader("History", colorize)...)
				store, err := history.Open(cmd.Context(), cfg.Paths.HistoryDB)
				if err != nil {
					emit(renderStatusLine("Database", statusError, err.Error(), colorize))
				} else {
					counts, err := store.Counts(cmd.Context())
					_ = store.Close()
					if err != nil {
						emit(renderStatusLine("Database", statusError, err.Error(), colorize))
					} else {
						emit(renderStatusLine("Database", statusOK, cfg.Paths.HistoryDB, colorize))
						emit(renderStatusLine("Runs", statusInfo, summarizeCounts(counts), colorize))
					}
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d blocking check(s) failed", len(failed))
			}
			return nil
		},
	}
}
