package encode

import (
	"image/color"
	"sort"
)

// maxPaletteColors is the GIF hard limit.
const maxPaletteColors = 256

// paletteSampleTarget bounds how many pixels feed the quantizer. Sampling
// keeps palette construction cheap on large frames without visibly hurting
// palette quality.
const paletteSampleTarget = 4096

type rgb struct{ r, g, b uint8 }

// BuildPalette derives a color palette from raw RGBA pixels using median-cut
// quantization. Used per frame for small jobs and once for the whole
// animation when a shared global palette is in effect.
func BuildPalette(pix []byte, maxColors int) color.Palette {
	if maxColors <= 0 || maxColors > maxPaletteColors {
		maxColors = maxPaletteColors
	}

	samples := samplePixels(pix)
	if len(samples) == 0 {
		return color.Palette{color.RGBA{A: 0xFF}}
	}

	boxes := [][]rgb{samples}
	for len(boxes) < maxColors {
		// Split the box with the widest channel range.
		idx, ch := widestBox(boxes)
		if idx < 0 {
			break
		}
		left, right := splitBox(boxes[idx], ch)
		if len(left) == 0 || len(right) == 0 {
			break
		}
		boxes[idx] = left
		boxes = append(boxes, right)
	}

	palette := make(color.Palette, 0, len(boxes))
	for _, box := range boxes {
		palette = append(palette, averageColor(box))
	}
	return palette
}

func samplePixels(pix []byte) []rgb {
	pixels := len(pix) / 4
	if pixels == 0 {
		return nil
	}
	stride := pixels / paletteSampleTarget
	if stride < 1 {
		stride = 1
	}

	samples := make([]rgb, 0, pixels/stride+1)
	for i := 0; i < pixels; i += stride {
		off := i * 4
		samples = append(samples, rgb{pix[off], pix[off+1], pix[off+2]})
	}
	return samples
}

// widestBox returns the index and channel (0=r 1=g 2=b) of the splittable
// box with the largest channel range, or -1 if nothing can be split.
func widestBox(boxes [][]rgb) (int, int) {
	bestIdx, bestCh, bestRange := -1, 0, 0
	for i, box := range boxes {
		if len(box) < 2 {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			lo, hi := channelRange(box, ch)
			if r := int(hi) - int(lo); r > bestRange {
				bestIdx, bestCh, bestRange = i, ch, r
			}
		}
	}
	return bestIdx, bestCh
}

func channelRange(box []rgb, ch int) (uint8, uint8) {
	lo, hi := uint8(255), uint8(0)
	for _, c := range box {
		v := c.channel(ch)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func (c rgb) channel(ch int) uint8 {
	switch ch {
	case 0:
		return c.r
	case 1:
		return c.g
	default:
		return c.b
	}
}

func splitBox(box []rgb, ch int) ([]rgb, []rgb) {
	sort.Slice(box, func(i, j int) bool {
		return box[i].channel(ch) < box[j].channel(ch)
	})
	mid := len(box) / 2
	return box[:mid], box[mid:]
}

func averageColor(box []rgb) color.RGBA {
	if len(box) == 0 {
		return color.RGBA{A: 0xFF}
	}
	var r, g, b int
	for _, c := range box {
		r += int(c.r)
		g += int(c.g)
		b += int(c.b)
	}
	n := len(box)
	return color.RGBA{
		R: uint8(r / n),
		G: uint8(g / n),
		B: uint8(b / n),
		A: 0xFF,
	}
}
