package raster

import (
	"bytes"
	"fmt"
	"image"

	"gifforge/internal/frame"
	"gifforge/internal/logging"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// PosterMaxDim bounds the poster's larger side. Posters are previews, not
// artifacts, so this is intentionally smaller than the output dimension cap.
const PosterMaxDim = 320

// PosterWebP encodes a WebP preview of a frame, used as the artifact's
// poster image. The libvips path is preferred when available; otherwise the
// frame is resized with imaging and encoded in pure Go.
func PosterWebP(buf *frame.Buffer, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = 80
	}

	if IsVipsAvailable() {
		out, err := vipsPosterWebP(buf.Pix, buf.Width, buf.Height, PosterMaxDim, quality)
		if err == nil {
			return out, nil
		}
		logging.Debug("vips poster failed (%v), falling back to pure Go", err)
	}

	img := image.Image(Image(buf))
	if buf.Width > PosterMaxDim || buf.Height > PosterMaxDim {
		img = imaging.Fit(img, PosterMaxDim, PosterMaxDim, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := webp.Encode(&out, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("failed to encode poster: %w", err)
	}
	return out.Bytes(), nil
}
