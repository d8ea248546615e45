package raster

import (
	"image"

	"gifforge/internal/frame"
)

// Image wraps a frame buffer as an image.Image without copying. The returned
// image aliases the buffer's pixels; it must not be used after the buffer is
// released.
func Image(buf *frame.Buffer) *image.RGBA {
	return &image.RGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * 4,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
}
