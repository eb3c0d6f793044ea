package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
	HistoryDB string `toml:"history_db"`
}

// Capture holds the default clip parameters used when a command does not
// override them.
type Capture struct {
	FrameRate float64 `toml:"frame_rate"`
	Width     int     `toml:"width"`
	Height    int     `toml:"height"`
	Quality   int     `toml:"quality"`
}

// Encoder selects and tunes the GIF backend.
type Encoder struct {
	Backend string `toml:"backend"`
	Workers int    `toml:"workers"`
	Loop    int    `toml:"loop"`
}

// Tools names the external binaries used for decoding and inspection.
type Tools struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Pipeline contains orchestrator behaviour switches.
type Pipeline struct {
	// RejectConcurrentStart makes Start fail while a run is active instead of
	// aborting the active run.
	RejectConcurrentStart bool `toml:"reject_concurrent_start"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for clipgif.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Capture  Capture  `toml:"capture"`
	Encoder  Encoder  `toml:"encoder"`
	Tools    Tools    `toml:"tools"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// ErrConfigExists is returned by WriteSample when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// Source records where a loaded config came from. Found is false when no
// file existed and defaults were used; Path is then where one would go.
type Source struct {
	Path  string
	Found bool
}

// DefaultConfigPath returns the expanded ~/.config/clipgif/config.toml.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the config at path, or searches the default location and then
// ./clipgif.toml when path is empty. Missing files yield defaults. The
// result is normalized and validated.
func Load(path string) (*Config, Source, error) {
	src, err := locate(path)
	if err != nil {
		return nil, Source{}, err
	}
	cfg := Default()
	if src.Found {
		if err := decodeFile(src.Path, &cfg); err != nil {
			return nil, src, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, src, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, src, err
	}
	return &cfg, src, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func locate(path string) (Source, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return Source{}, err
		}
		found, err := isFile(expanded)
		return Source{Path: expanded, Found: found}, err
	}

	home, err := DefaultConfigPath()
	if err != nil {
		return Source{}, err
	}
	local, err := filepath.Abs("clipgif.toml")
	if err != nil {
		return Source{}, err
	}
	for _, candidate := range []string{home, local} {
		if found, _ := isFile(candidate); found {
			return Source{Path: candidate, Found: true}, nil
		}
	}
	return Source{Path: home}, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the log and output directories and the parent
// of the history database.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, c.Paths.OutputDir}
	if c.Paths.HistoryDB != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.HistoryDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for decoding and encoding.
func (c *Config) FFmpegBinary() string {
	return orDefault(c.Tools.FFmpegBinary, defaultFFmpegBinary)
}

// FFprobeBinary returns the ffprobe executable used for source inspection.
func (c *Config) FFprobeBinary() string {
	return orDefault(c.Tools.FFprobeBinary, defaultFFprobeBinary)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// ExpandPath resolves a leading ~ and returns a clean absolute path. The
// empty string is returned unchanged.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}
	return abs, nil
}

// WriteSample writes the commented sample configuration to path, creating
// parent directories. An existing file is kept unless overwrite is set.
func WriteSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", path, ErrConfigExists)
	}
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}
