package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clipgif/internal/config"
)

// ConfigOption adjusts a test configuration. base is the temp directory
// holding the config's paths.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns defaults with every path under a fresh temp directory and
// a tiny 16x9 capture size.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		LogDir:    filepath.Join(base, "logs"),
		OutputDir: filepath.Join(base, "out"),
		HistoryDB: filepath.Join(base, "state", "history.db"),
	}
	cfg.Capture.Width, cfg.Capture.Height = 16, 9
	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables named after tools (ffmpeg and
// ffprobe when empty) at the front of PATH for the test's lifetime.
func WithStubbedBinaries(tools ...string) ConfigOption {
	if len(tools) == 0 {
		tools = []string{"ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, base string, _ *config.Config) {
		t.Helper()
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("create stub dir: %v", err)
		}
		for _, tool := range tools {
			if err := os.WriteFile(filepath.Join(bin, tool), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("stub %s: %v", tool, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory NewConfig placed cfg's paths under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
