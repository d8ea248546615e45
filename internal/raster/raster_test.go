package raster

import (
	"bytes"
	"testing"

	"gifforge/internal/frame"

	"github.com/chai2010/webp"
)

func testBuffer(w, h int) *frame.Buffer {
	pool := frame.NewPool(w, h, 1)
	buf := pool.Get()
	for i := 3; i < len(buf.Pix); i += 4 {
		buf.Pix[i] = 0xFF // opaque
	}
	return buf
}

func TestImageAliasesBuffer(t *testing.T) {
	buf := testBuffer(8, 6)
	img := Image(buf)

	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Fatalf("bounds = %v, want 8x6", img.Bounds())
	}

	buf.Pix[0] = 0xAB
	if img.Pix[0] != 0xAB {
		t.Error("image does not alias buffer pixels")
	}
}

func TestPosterWebP(t *testing.T) {
	buf := testBuffer(16, 16)

	out, err := PosterWebP(buf, 80)
	if err != nil {
		t.Fatalf("PosterWebP() error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("PosterWebP() returned no bytes")
	}

	img, err := webp.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("poster does not decode as webp: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("poster width = %d, want 16 (under max, no resize)", img.Bounds().Dx())
	}
}

func TestPosterWebPResizesLargeFrames(t *testing.T) {
	buf := testBuffer(640, 480)

	out, err := PosterWebP(buf, 80)
	if err != nil {
		t.Fatalf("PosterWebP() error: %v", err)
	}

	img, err := webp.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("poster does not decode as webp: %v", err)
	}
	if img.Bounds().Dx() > PosterMaxDim || img.Bounds().Dy() > PosterMaxDim {
		t.Errorf("poster %dx%d exceeds max dimension %d",
			img.Bounds().Dx(), img.Bounds().Dy(), PosterMaxDim)
	}
}

func TestPosterWebPClampsBadQuality(t *testing.T) {
	buf := testBuffer(8, 8)
	if _, err := PosterWebP(buf, 0); err != nil {
		t.Errorf("PosterWebP with out-of-range quality should clamp, got error: %v", err)
	}
}
