package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoder()
	c.normalizeTools()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.history_db", &c.Paths.HistoryDB, defaultHistoryDB},
	}
	for _, f := range fields {
		expanded, err := ExpandPath(orDefault(*f.value, f.fallback))
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Backend = strings.ToLower(strings.TrimSpace(c.Encoder.Backend))
	if c.Encoder.Backend == "" {
		c.Encoder.Backend = defaultBackend
	}
	if c.Encoder.Workers == 0 {
		c.Encoder.Workers = defaultWorkers
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpegBinary = c.FFmpegBinary()
	c.Tools.FFprobeBinary = c.FFprobeBinary()
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if value, ok := os.LookupEnv("CLIPGIF_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
