package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clipgif/internal/config"
	"clipgif/internal/media"
	"clipgif/internal/pipeline"
	"clipgif/internal/services"
	"clipgif/internal/testsupport"
)

const missingInput = "missing.mp4"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string

	// configure adjusts each fake source before it is handed to the pipeline.
	configure func(*testsupport.FakeSource)

	mu     sync.Mutex
	opened []string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) openSource(_ context.Context, _ *config.Config, path string, clip pipeline.Configuration) (media.Source, error) {
	e.mu.Lock()
	e.opened = append(e.opened, path)
	e.mu.Unlock()
	if filepath.Base(path) == missingInput {
		return nil, services.Wrap(services.ErrSource, "test", "open", path, os.ErrNotExist)
	}
	src := testsupport.NewFakeSource()
	src.Width = clip.Width
	src.Height = clip.Height
	if e.configure != nil {
		e.configure(src)
	}
	return src, nil
}

func (e *cliTestEnv) openedInputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.opened...)
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *cliTestEnv) runContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var configFlag string
	cc := newCommandContext(&configFlag)
	cc.openSource = e.openSource

	cmd := newRootCommandWith(cc, &configFlag)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
