// Package ffmpeg implements a media.Source that decodes single frames from a
// video file on demand. Each seek runs one ffmpeg process that writes a raw
// RGBA picture to stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipgif/internal/media/ffprobe"
	"clipgif/internal/services"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Info describes the decoded picture stream.
type Info struct {
	Duration time.Duration
	Width    int
	Height   int
}

// Option configures a FileSource.
type Option func(*FileSource)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(s *FileSource) {
		if b := strings.TrimSpace(binary); b != "" {
			s.binary = b
		}
	}
}

// WithDecodeSize makes ffmpeg scale frames to width x height while decoding.
func WithDecodeSize(width, height int) Option {
	return func(s *FileSource) {
		if width > 0 && height > 0 {
			s.decodeWidth = width
			s.decodeHeight = height
		}
	}
}

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(s *FileSource) {
		if r != nil {
			s.run = r
		}
	}
}

// FileSource is a paused-only video source backed by a file on disk.
type FileSource struct {
	path         string
	binary       string
	info         Info
	decodeWidth  int
	decodeHeight int
	run          Runner

	mu      sync.Mutex
	current time.Duration
	paused  bool
	frame   *image.RGBA
	seeking bool
}

// Open inspects path with ffprobe and returns a source for it.
func Open(ctx context.Context, ffprobeBinary, path string, opts ...Option) (*FileSource, error) {
	result, err := ffprobe.Inspect(ctx, ffprobeBinary, path)
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "open", "inspect "+path, err)
	}
	video, ok := result.VideoStream()
	if !ok {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "open", "no video stream in "+path, nil)
	}
	return New(path, Info{Duration: result.Duration(), Width: video.Width, Height: video.Height}, opts...)
}

// New returns a source for a file whose stream info is already known.
func New(path string, info Info, opts ...Option) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "open", "empty path", nil)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "open", fmt.Sprintf("invalid picture size %dx%d", info.Width, info.Height), nil)
	}
	s := &FileSource{
		path:   path,
		binary: "ffmpeg",
		info:   info,
		run:    execRunner,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decodeWidth == 0 {
		s.decodeWidth, s.decodeHeight = info.Width, info.Height
	}
	return s, nil
}

// Info returns the probed stream information.
func (s *FileSource) Duration() time.Duration { return s.info.Duration }

func (s *FileSource) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *FileSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Pause marks the source paused. A file source never plays, so this only
// records the request.
func (s *FileSource) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

// Seek decodes the frame at the requested position in a background process.
func (s *FileSource) Seek(ctx context.Context, at time.Duration) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	if s.seeking {
		s.mu.Unlock()
		done <- services.Wrap(services.ErrSource, "ffmpeg", "seek", "seek already in progress", nil)
		close(done)
		return done
	}
	s.seeking = true
	s.mu.Unlock()

	go func() {
		defer close(done)
		frame, err := s.decode(ctx, at)

		s.mu.Lock()
		s.seeking = false
		if err == nil {
			s.frame = frame
			s.current = at
		}
		s.mu.Unlock()

		done <- err
	}()
	return done
}

// Frame returns the most recently decoded picture.
func (s *FileSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "frame", "no frame decoded yet", nil)
	}
	return s.frame, nil
}

func (s *FileSource) decode(ctx context.Context, at time.Duration) (*image.RGBA, error) {
	if at < 0 || (s.info.Duration > 0 && at > s.info.Duration) {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "seek", fmt.Sprintf("position %s outside 0..%s", at, s.info.Duration), nil)
	}
	out, err := s.run(ctx, s.binary, s.args(at)...)
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "seek", "decode frame at "+at.String(), err)
	}
	want := s.decodeWidth * s.decodeHeight * 4
	if len(out) < want {
		return nil, services.Wrap(services.ErrSource, "ffmpeg", "seek",
			fmt.Sprintf("short frame at %s: got %d bytes, want %d", at, len(out), want), nil)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.decodeWidth, s.decodeHeight))
	copy(img.Pix, out[:want])
	return img, nil
}

func (s *FileSource) args(at time.Duration) []string {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-ss", formatSeconds(at),
		"-i", s.path,
		"-frames:v", "1",
	}
	if s.decodeWidth != s.info.Width || s.decodeHeight != s.info.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", s.decodeWidth, s.decodeHeight))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced no output")
	}
	return out, nil
}
