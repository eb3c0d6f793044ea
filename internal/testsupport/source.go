package testsupport

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

// ErrSeekFailed is returned by FakeSource for timestamps listed in FailAt.
var ErrSeekFailed = errors.New("fake seek failed")

// FakeSource is a deterministic media.Source. The picture at t is a solid
// colour derived from t, so identical schedules yield identical frames.
type FakeSource struct {
	Length time.Duration
	Width  int
	Height int
	// FailAt makes the seek to the given timestamp fail.
	FailAt map[time.Duration]bool
	// BeforeComplete runs on the seek goroutine before the seek completes.
	BeforeComplete func(at time.Duration)
	// PauseErr is returned by Pause, which then leaves the source playing.
	PauseErr error

	mu          sync.Mutex
	current     time.Duration
	paused      bool
	pauses      int
	seeks       []time.Duration
	outstanding int
	maxInFlight int
}

// NewFakeSource returns a 10s source with 8x8 frames.
func NewFakeSource() *FakeSource {
	return &FakeSource{Length: 10 * time.Second, Width: 8, Height: 8}
}

func (s *FakeSource) Duration() time.Duration { return s.Length }

func (s *FakeSource) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *FakeSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *FakeSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	if s.PauseErr != nil {
		return s.PauseErr
	}
	s.paused = true
	return nil
}

// Pauses counts Pause calls, failed ones included.
func (s *FakeSource) Pauses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses
}

func (s *FakeSource) Seek(_ context.Context, at time.Duration) <-chan error {
	done := make(chan error, 1)
	s.mu.Lock()
	s.seeks = append(s.seeks, at)
	s.outstanding++
	if s.outstanding > s.maxInFlight {
		s.maxInFlight = s.outstanding
	}
	s.mu.Unlock()

	go func() {
		defer close(done)
		if s.BeforeComplete != nil {
			s.BeforeComplete(at)
		}
		s.mu.Lock()
		s.outstanding--
		fail := s.FailAt[at]
		if !fail {
			s.current = at
		}
		s.mu.Unlock()
		if fail {
			done <- ErrSeekFailed
			return
		}
		done <- nil
	}()
	return done
}

func (s *FakeSource) Frame() (image.Image, error) {
	s.mu.Lock()
	at := s.current
	s.mu.Unlock()
	return FrameAt(at, s.Width, s.Height), nil
}

// Seeks returns every requested seek position in order.
func (s *FakeSource) Seeks() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.seeks...)
}

// MaxInFlight reports the highest number of simultaneously pending seeks.
func (s *FakeSource) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// FrameAt renders the deterministic picture for t.
func FrameAt(at time.Duration, width, height int) *image.RGBA {
	ms := at.Milliseconds()
	c := color.RGBA{R: byte(ms / 100), G: byte(ms % 256), B: 0x40, A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}
