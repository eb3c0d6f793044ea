// Package surface provides an in-memory render surface. Frames drawn onto it
// are scaled to the canvas size with golang.org/x/image/draw.
package surface

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// Canvas is an RGBA drawing target safe for use from one run at a time.
// Resize and Draw hold a lock so a snapshot never observes a partial draw.
type Canvas struct {
	mu     sync.Mutex
	img    *image.RGBA
	scaler draw.Scaler
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithScaler selects the interpolation used when frames are resized.
func WithScaler(s draw.Scaler) Option {
	return func(c *Canvas) {
		if s != nil {
			c.scaler = s
		}
	}
}

// NewCanvas returns an empty 0x0 canvas. Call Resize before drawing.
func NewCanvas(opts ...Option) *Canvas {
	c := &Canvas{img: image.NewRGBA(image.Rectangle{}), scaler: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resize reallocates the backing image when the size changes and clears it.
func (c *Canvas) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img.Rect.Dx() == width && c.img.Rect.Dy() == height {
		draw.Draw(c.img, c.img.Rect, image.NewUniform(color.Transparent), image.Point{}, draw.Src)
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Draw scales img to fill the canvas.
func (c *Canvas) Draw(img image.Image) {
	if img == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img.Rect.Empty() {
		return
	}
	if img.Bounds().Size() == c.img.Rect.Size() {
		draw.Draw(c.img, c.img.Rect, img, img.Bounds().Min, draw.Src)
		return
	}
	c.scaler.Scale(c.img, c.img.Rect, img, img.Bounds(), draw.Src, nil)
}

// Snapshot returns a copy of the current canvas contents.
func (c *Canvas) Snapshot() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Rect)
	copy(out.Pix, c.img.Pix)
	return out
}

