// Package ffmpegenc is the GIF backend that streams raw RGBA frames into an
// ffmpeg process running the palettegen/paletteuse filter pair. ffmpeg starts
// with the first frame so capture and encode overlap.
package ffmpegenc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"clipgif/internal/encoding"
	"clipgif/internal/logging"
)

var commandContext = exec.CommandContext

// ErrAborted is returned by Render after Abort.
var ErrAborted = errors.New("ffmpeg encode aborted")

// renderShare is the part of render progress driven by ffmpeg's frame
// counter; the final step is reported once the process exits cleanly.
const renderShare = 0.95

const stderrTailLines = 5

// Option configures an Encoder.
type Option func(*Encoder)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(e *Encoder) {
		if b := strings.TrimSpace(binary); b != "" {
			e.binary = b
		}
	}
}

// WithLogger sets the logger used for process diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Encoder) {
		e.logger = logging.NewComponentLogger(logger, "ffmpegenc")
	}
}

// Encoder implements encoding.Encoder on top of an ffmpeg child process.
type Encoder struct {
	binary string
	opts   encoding.Options
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	cancel    context.CancelFunc
	frames    int
	rendering bool
	progress  func(float64)
	lastRatio float64
	tail      []string

	out       bytes.Buffer
	outDone   chan error
	errDone   chan struct{}
	aborted   atomic.Bool
	frameSize int
}

// New builds an encoder for one run. No process is started until the first
// frame arrives.
func New(opts encoding.Options, options ...Option) (*Encoder, error) {
	opts = opts.WithDefaults()
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("ffmpeg encoder: invalid size %dx%d", opts.Width, opts.Height)
	}
	e := &Encoder{
		binary:    "ffmpeg",
		opts:      opts,
		logger:    logging.NewNop(),
		frameSize: opts.Width * opts.Height * 4,
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// NewFactory returns an encoding.Factory producing ffmpeg-backed encoders.
func NewFactory(options ...Option) encoding.Factory {
	return func(opts encoding.Options) (encoding.Encoder, error) {
		return New(opts, options...)
	}
}

func (e *Encoder) AddFrame(img image.Image, delay time.Duration) error {
	if img == nil {
		return errors.New("ffmpeg encoder: nil frame")
	}
	if e.aborted.Load() {
		return ErrAborted
	}
	e.mu.Lock()
	if e.rendering {
		e.mu.Unlock()
		return errors.New("ffmpeg encoder: frame added after render")
	}
	if e.cmd == nil {
		if err := e.startLocked(delay); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	stdin := e.stdin
	e.mu.Unlock()

	if _, err := stdin.Write(e.raw(img)); err != nil {
		if e.aborted.Load() {
			return ErrAborted
		}
		return fmt.Errorf("ffmpeg encoder: write frame: %w%s", err, e.tailSuffix())
	}
	e.mu.Lock()
	e.frames++
	e.mu.Unlock()
	return nil
}

func (e *Encoder) Render(ctx context.Context, progress func(float64)) ([]byte, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	e.mu.Lock()
	if e.rendering {
		e.mu.Unlock()
		return nil, errors.New("ffmpeg encoder: render called twice")
	}
	e.rendering = true
	e.progress = progress
	cmd, stdin, frames := e.cmd, e.stdin, e.frames
	e.mu.Unlock()

	if cmd == nil || frames == 0 {
		return nil, errors.New("ffmpeg encoder: no frames")
	}
	if e.aborted.Load() {
		return nil, ErrAborted
	}

	stop := context.AfterFunc(ctx, e.Abort)
	defer stop()

	started := time.Now()
	_ = stdin.Close()
	outErr := <-e.outDone
	<-e.errDone
	waitErr := cmd.Wait()

	if e.aborted.Load() {
		return nil, ErrAborted
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg encoder: %w%s", waitErr, e.tailSuffix())
	}
	if outErr != nil {
		return nil, fmt.Errorf("ffmpeg encoder: read output: %w", outErr)
	}
	if e.out.Len() == 0 {
		return nil, errors.New("ffmpeg encoder: empty output")
	}
	e.report(1)
	e.logger.Debug("ffmpeg gif rendered",
		logging.Int("frames", frames),
		logging.Int("bytes", e.out.Len()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return bytes.Clone(e.out.Bytes()), nil
}

// Abort kills the ffmpeg process if one is running.
func (e *Encoder) Abort() {
	e.aborted.Store(true)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Encoder) startLocked(delay time.Duration) error {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := commandContext(procCtx, e.binary, e.args(delay)...) //nolint:gosec
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg encoder: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg encoder: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg encoder: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg encoder: start %s: %w", e.binary, err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.cancel = cancel
	e.outDone = make(chan error, 1)
	e.errDone = make(chan struct{})

	go func() {
		_, err := io.Copy(&e.out, stdout)
		e.outDone <- err
	}()
	go e.readProgress(stderr)

	e.logger.Debug("ffmpeg started", logging.String("command", e.binary+" "+strings.Join(cmd.Args[1:], " ")))
	return nil
}

func (e *Encoder) args(delay time.Duration) []string {
	return []string{
		"-hide_banner",
		"-v", "error",
		"-nostats",
		"-progress", "pipe:2",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", e.opts.Width, e.opts.Height),
		"-framerate", frameRate(delay),
		"-i", "-",
		"-filter_complex", filterGraph(e.opts.Quality),
		"-loop", strconv.Itoa(e.opts.Loop),
		"-f", "gif",
		"-",
	}
}

// readProgress parses ffmpeg's key=value progress stream and keeps the last
// few diagnostic lines for error messages.
func (e *Encoder) readProgress(r io.Reader) {
	defer close(e.errDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.ContainsAny(key, " []") {
			e.mu.Lock()
			e.tail = append(e.tail, line)
			if len(e.tail) > stderrTailLines {
				e.tail = e.tail[len(e.tail)-stderrTailLines:]
			}
			e.mu.Unlock()
			continue
		}
		if key != "frame" {
			continue
		}
		done, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		e.mu.Lock()
		total := e.frames
		e.mu.Unlock()
		if total > 0 {
			e.report(renderShare * min(float64(done)/float64(total), 1))
		}
	}
}

// report forwards a non-decreasing ratio. The callback runs without e.mu
// held; it may block on locks that an Abort caller holds.
func (e *Encoder) report(ratio float64) {
	e.mu.Lock()
	progress := e.progress
	if progress == nil || ratio < e.lastRatio {
		e.mu.Unlock()
		return
	}
	e.lastRatio = ratio
	e.mu.Unlock()
	progress(ratio)
}

func (e *Encoder) tailSuffix() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tail) == 0 {
		return ""
	}
	return ": " + strings.Join(e.tail, "; ")
}

func (e *Encoder) raw(img image.Image) []byte {
	bounds := image.Rect(0, 0, e.opts.Width, e.opts.Height)
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect == bounds && rgba.Stride == e.opts.Width*4 {
		return rgba.Pix
	}
	dst := image.NewRGBA(bounds)
	if img.Bounds().Size() == bounds.Size() {
		draw.Draw(dst, bounds, img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, bounds, img, img.Bounds(), draw.Src, nil)
	}
	return dst.Pix
}

// frameRate renders 1/delay as an exact rational for -framerate.
func frameRate(delay time.Duration) string {
	us := delay.Microseconds()
	if us <= 0 {
		us = 100_000
	}
	return fmt.Sprintf("1000000/%d", us)
}

// filterGraph maps encoder quality (1 best, 31 fastest) onto palette size and
// dithering.
func filterGraph(quality int) string {
	colors := 256 - (quality-1)*7
	colors = max(32, min(256, colors))
	dither := "sierra2_4a"
	if quality > 20 {
		dither = "bayer:bayer_scale=3"
	}
	return fmt.Sprintf("split[a][b];[a]palettegen=max_colors=%d:stats_mode=diff[p];[b][p]paletteuse=dither=%s", colors, dither)
}

var _ encoding.Encoder = (*Encoder)(nil)
