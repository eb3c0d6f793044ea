package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	rate := c.Capture.FrameRate
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return errors.New("capture.frame_rate must be positive")
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return errors.New("capture.width and capture.height must be positive")
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 10 {
		return fmt.Errorf("capture.quality must be between 1 and 10, got %d", c.Capture.Quality)
	}
	return nil
}

func (c *Config) validateEncoder() error {
	switch c.Encoder.Backend {
	case BackendGIF, BackendFFmpeg:
	default:
		return fmt.Errorf("encoder.backend: unsupported value %q (want %q or %q)", c.Encoder.Backend, BackendGIF, BackendFFmpeg)
	}
	if c.Encoder.Workers < 1 {
		return errors.New("encoder.workers must be at least 1")
	}
	if c.Encoder.Loop < -1 {
		return errors.New("encoder.loop must be -1 (play once), 0 (forever), or a positive repeat count")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
