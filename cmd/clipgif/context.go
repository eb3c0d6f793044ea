package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"clipgif/internal/config"
	"clipgif/internal/deps"
	"clipgif/internal/encoding"
	"clipgif/internal/encoding/ffmpegenc"
	"clipgif/internal/encoding/gifenc"
	"clipgif/internal/history"
	"clipgif/internal/logging"
	"clipgif/internal/media"
	"clipgif/internal/media/ffmpeg"
	"clipgif/internal/pipeline"
)

// sourceOpener opens the video at path for a capture of cfg.
type sourceOpener func(ctx context.Context, cfg *config.Config, path string, clip pipeline.Configuration) (media.Source, error)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	openSource sourceOpener
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		openSource: openFileSource,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) encoderFactory(cfg *config.Config, logger *slog.Logger, backend string) encoding.Factory {
	if strings.TrimSpace(backend) == "" {
		backend = cfg.Encoder.Backend
	}
	if backend == config.BackendFFmpeg {
		return ffmpegenc.NewFactory(ffmpegenc.WithBinary(cfg.FFmpegBinary()), ffmpegenc.WithLogger(logger))
	}
	return gifenc.NewFactory(logger)
}

// openHistory opens the run history; a failure is logged and capture goes on
// without it.
func (c *commandContext) openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) *history.Store {
	if strings.TrimSpace(cfg.Paths.HistoryDB) == "" {
		return nil
	}
	store, err := history.Open(ctx, cfg.Paths.HistoryDB)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "runs will not be recorded; check paths.history_db"),
		)
		return nil
	}
	if n, err := store.ResetStale(ctx); err == nil && n > 0 {
		logger.Info("marked interrupted runs as aborted", logging.Int64("runs", n))
	}
	return store
}

func openFileSource(ctx context.Context, cfg *config.Config, path string, clip pipeline.Configuration) (media.Source, error) {
	return ffmpeg.Open(ctx, deps.ResolveFFprobe(cfg.FFprobeBinary(), cfg.FFmpegBinary()), path,
		ffmpeg.WithBinary(cfg.FFmpegBinary()),
		ffmpeg.WithDecodeSize(clip.Width, clip.Height),
	)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
