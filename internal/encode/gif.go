package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"sync"

	"gifforge/internal/config"
	"gifforge/internal/frame"
	"gifforge/internal/logging"
	"gifforge/internal/raster"
	"gifforge/internal/source"
)

// GIFEncoder quantizes frames to palettes in parallel and assembles them into
// an animated GIF. Above the global-palette threshold a single shared color
// table (derived from the first frame) bounds palette-table memory; smaller
// jobs quantize each frame independently for higher fidelity.
type GIFEncoder struct {
	delay         int // centiseconds between frames
	dither        bool
	globalPalette bool

	paletteOnce sync.Once
	palette     color.Palette

	mu   sync.Mutex
	anim *gif.GIF
}

// NewGIF configures a GIF encode for one conversion.
func NewGIF(req source.Request, estimatedFrames int, limits config.Limits) *GIFEncoder {
	delay := 100 / req.FPS
	if delay < 2 {
		// Most viewers treat <2cs as "as fast as possible"; clamp so the
		// animation speed stays predictable.
		delay = 2
	}

	g := &GIFEncoder{
		delay:         delay,
		dither:        req.Quality >= limits.DitherQuality,
		globalPalette: estimatedFrames > limits.GlobalPaletteFrames,
		anim:          &gif.GIF{},
	}
	logging.Debug("GIF encode: delay=%dcs dither=%v globalPalette=%v",
		g.delay, g.dither, g.globalPalette)
	return g
}

// UsesGlobalPalette reports whether a shared color table is in effect.
func (g *GIFEncoder) UsesGlobalPalette() bool { return g.globalPalette }

// Dithers reports whether Floyd-Steinberg dithering is applied.
func (g *GIFEncoder) Dithers() bool { return g.dither }

// EncodeFrame implements Encoder. Safe for parallel use; the shared palette
// is derived once, from the first frame to reach a worker.
func (g *GIFEncoder) EncodeFrame(buf *frame.Buffer) (*Encoded, error) {
	src := raster.Image(buf)

	var pal color.Palette
	if g.globalPalette {
		g.paletteOnce.Do(func() {
			g.palette = BuildPalette(buf.Pix, maxPaletteColors)
		})
		pal = g.palette
	} else {
		pal = BuildPalette(buf.Pix, maxPaletteColors)
	}

	paletted := image.NewPaletted(src.Bounds(), pal)
	if g.dither {
		draw.FloydSteinberg.Draw(paletted, src.Bounds(), src, image.Point{})
	} else {
		draw.Draw(paletted, src.Bounds(), src, image.Point{}, draw.Src)
	}

	seq := buf.Seq
	buf.Release()
	return &Encoded{Seq: seq, Paletted: paletted}, nil
}

// Append implements Encoder.
func (g *GIFEncoder) Append(e *Encoded) error {
	if e.Paletted == nil {
		return fmt.Errorf("frame %d has no quantized image", e.Seq)
	}
	g.mu.Lock()
	g.anim.Image = append(g.anim.Image, e.Paletted)
	g.anim.Delay = append(g.anim.Delay, g.delay)
	g.anim.Disposal = append(g.anim.Disposal, gif.DisposalNone)
	g.mu.Unlock()
	return nil
}

// Finalize implements Encoder.
func (g *GIFEncoder) Finalize() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.anim.Image) == 0 {
		return nil, fmt.Errorf("no frames to encode")
	}

	var out bytes.Buffer
	if err := gif.EncodeAll(&out, g.anim); err != nil {
		return nil, fmt.Errorf("gif encode failed: %w", err)
	}
	return out.Bytes(), nil
}

// Close implements Encoder. The GIF assembler holds no external resources.
func (g *GIFEncoder) Close() error {
	g.mu.Lock()
	g.anim = &gif.GIF{}
	g.mu.Unlock()
	return nil
}
