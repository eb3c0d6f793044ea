// Package batch runs a list of clips, read from a YAML manifest, one after
// another on a single pipeline orchestrator.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"clipgif/internal/pipeline"
	"clipgif/internal/services"
)

// Defaults apply to every clip that leaves a field unset.
type Defaults struct {
	FrameRate float64 `yaml:"fps"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Quality   int     `yaml:"quality"`
}

// Clip is one capture in the manifest.
type Clip struct {
	Name      string  `yaml:"name"`
	Input     string  `yaml:"input"`
	Output    string  `yaml:"output"`
	StartMs   float64 `yaml:"start_ms"`
	EndMs     float64 `yaml:"end_ms"`
	FrameRate float64 `yaml:"fps"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Quality   int     `yaml:"quality"`
}

// Manifest is a parsed batch file.
type Manifest struct {
	Defaults Defaults `yaml:"defaults"`
	Clips    []Clip   `yaml:"clips"`

	dir string
}

// ErrNoClips is reported when a manifest lists nothing to capture.
var ErrNoClips = errors.New("manifest has no clips")

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Load reads and validates a manifest. Relative inputs and outputs resolve
// against the manifest's directory; fallback fills defaults the file omits.
func Load(path string, fallback Defaults) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "read manifest", path, err)
	}
	m, err := Parse(data, fallback)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return m, nil
}

// Parse decodes manifest YAML and validates every clip. Unknown keys are
// rejected.
func Parse(data []byte, fallback Defaults) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "parse manifest", "", err)
	}
	if len(m.Clips) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "parse manifest", "", ErrNoClips)
	}
	m.withDefaults(fallback)

	seen := make(map[string]bool, len(m.Clips))
	for i := range m.Clips {
		clip := &m.Clips[i]
		clip.Input = strings.TrimSpace(clip.Input)
		if clip.Input == "" {
			return nil, services.Wrap(services.ErrConfiguration, "batch", "parse manifest",
				fmt.Sprintf("clip %d has no input", i+1), nil)
		}
		if clip.Name = strings.TrimSpace(clip.Name); clip.Name == "" {
			base := filepath.Base(clip.Input)
			clip.Name = fmt.Sprintf("%s-%d", strings.TrimSuffix(base, filepath.Ext(base)), i+1)
		}
		clip.Name = unsafeName.ReplaceAllString(clip.Name, "_")
		if seen[clip.Name] {
			return nil, services.Wrap(services.ErrConfiguration, "batch", "parse manifest",
				fmt.Sprintf("duplicate clip name %q", clip.Name), nil)
		}
		seen[clip.Name] = true
		if err := m.Configuration(*clip).Validate(); err != nil {
			return nil, fmt.Errorf("clip %q: %w", clip.Name, err)
		}
	}
	return &m, nil
}

// Configuration merges a clip with the manifest defaults.
func (m *Manifest) Configuration(c Clip) pipeline.Configuration {
	cfg := pipeline.Configuration{
		FrameRate: c.FrameRate,
		StartMs:   c.StartMs,
		EndMs:     c.EndMs,
		Width:     c.Width,
		Height:    c.Height,
		Quality:   c.Quality,
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = m.Defaults.FrameRate
	}
	if cfg.Width == 0 {
		cfg.Width = m.Defaults.Width
	}
	if cfg.Height == 0 {
		cfg.Height = m.Defaults.Height
	}
	if cfg.Quality == 0 {
		cfg.Quality = m.Defaults.Quality
	}
	return cfg
}

func (m *Manifest) withDefaults(d Defaults) {
	if m.Defaults.FrameRate == 0 {
		m.Defaults.FrameRate = d.FrameRate
	}
	if m.Defaults.Width == 0 {
		m.Defaults.Width = d.Width
	}
	if m.Defaults.Height == 0 {
		m.Defaults.Height = d.Height
	}
	if m.Defaults.Quality == 0 {
		m.Defaults.Quality = d.Quality
	}
}

// InputPath resolves a clip input.
func (m *Manifest) InputPath(c Clip) string {
	return m.resolve(c.Input)
}

// OutputPath resolves a clip output, defaulting to <outputDir>/<name>.gif.
func (m *Manifest) OutputPath(c Clip, outputDir string) string {
	if out := strings.TrimSpace(c.Output); out != "" {
		return m.resolve(out)
	}
	return filepath.Join(outputDir, c.Name+".gif")
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}
