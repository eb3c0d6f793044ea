package testsupport

import (
	"image"
	"sync"

	"clipgif/internal/media/surface"
)

// FakeSurface wraps a real canvas and records every resize.
type FakeSurface struct {
	*surface.Canvas

	mu      sync.Mutex
	resizes []image.Point
	draws   int
}

// NewFakeSurface returns a recording surface.
func NewFakeSurface() *FakeSurface {
	return &FakeSurface{Canvas: surface.NewCanvas()}
}

func (s *FakeSurface) Resize(width, height int) {
	s.mu.Lock()
	s.resizes = append(s.resizes, image.Pt(width, height))
	s.mu.Unlock()
	s.Canvas.Resize(width, height)
}

func (s *FakeSurface) Draw(img image.Image) {
	s.mu.Lock()
	s.draws++
	s.mu.Unlock()
	s.Canvas.Draw(img)
}

// Resizes lists every requested size in order.
func (s *FakeSurface) Resizes() []image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Point(nil), s.resizes...)
}

// Draws counts Draw calls.
func (s *FakeSurface) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}
