package gifenc

import (
	"image"
	"image/color"
	"slices"
)

const maxPaletteSize = 256

type bin struct {
	key     uint16
	count   int
	r, g, b int
}

// buildPalette picks the most frequent colours of img using a 15-bit
// histogram. Every stride-th pixel is sampled, so higher strides trade
// palette accuracy for speed.
func buildPalette(img *image.RGBA, stride int) color.Palette {
	if stride < 1 {
		stride = 1
	}
	bins := make(map[uint16]*bin)
	pix := img.Pix
	step := 4 * stride
	for i := 0; i+3 < len(pix); i += step {
		r, g, b := int(pix[i]), int(pix[i+1]), int(pix[i+2])
		key := uint16(r>>3)<<10 | uint16(g>>3)<<5 | uint16(b>>3)
		entry, ok := bins[key]
		if !ok {
			entry = &bin{key: key}
			bins[key] = entry
		}
		entry.count++
		entry.r += r
		entry.g += g
		entry.b += b
	}

	ordered := make([]*bin, 0, len(bins))
	for _, entry := range bins {
		ordered = append(ordered, entry)
	}
	slices.SortFunc(ordered, func(a, b *bin) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return int(a.key) - int(b.key)
	})
	if len(ordered) > maxPaletteSize {
		ordered = ordered[:maxPaletteSize]
	}

	palette := make(color.Palette, 0, max(len(ordered), 1))
	for _, entry := range ordered {
		palette = append(palette, color.RGBA{
			R: uint8(entry.r / entry.count),
			G: uint8(entry.g / entry.count),
			B: uint8(entry.b / entry.count),
			A: 0xff,
		})
	}
	if len(palette) == 0 {
		palette = append(palette, color.Black)
	}
	return palette
}
