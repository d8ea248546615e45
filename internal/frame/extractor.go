package frame

import (
	"context"
	"fmt"
	"io"

	"gifforge/internal/config"
	"gifforge/internal/logging"
	"gifforge/internal/metrics"
	"gifforge/internal/source"
)

// Extractor steps a decoder through the requested time window at the
// requested frame rate, producing a finite, non-restartable sequence of
// frame buffers with strictly increasing sequence indexes.
type Extractor struct {
	dec    Decoder
	window source.Window
	fps    int
	width  int
	height int
	pool   *Pool

	estimated  int
	skipBudget int

	step     int
	seq      uint64
	skipped  int
	finished bool
}

// NewExtractor prepares extraction of one conversion request against a
// validated descriptor. Output dimensions are capped and evened here so the
// pool, extractor, and encoder all agree on frame geometry.
func NewExtractor(dec Decoder, desc *source.Descriptor, req source.Request, limits config.Limits, pool *Pool) *Extractor {
	window := desc.Window(req)
	estimated := window.EstimatedFrames(req.FPS)

	skipBudget := int(float64(estimated) * limits.SkipBudgetRatio)

	return &Extractor{
		dec:        dec,
		window:     window,
		fps:        req.FPS,
		width:      pool.width,
		height:     pool.height,
		pool:       pool,
		estimated:  estimated,
		skipBudget: skipBudget,
	}
}

// Estimated returns the upper bound on frames this extractor will produce.
func (e *Extractor) Estimated() int { return e.estimated }

// Skipped returns how many frames were dropped after repeated seek failures.
func (e *Extractor) Skipped() int { return e.skipped }

// Next produces the next frame buffer, or io.EOF once the window is
// exhausted. A single seek failure at a timestamp is retried once; a second
// failure skips the frame under the skip budget. The sequence cannot be
// restarted after io.EOF.
func (e *Extractor) Next(ctx context.Context) (*Buffer, error) {
	if e.finished {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t := e.window.Start + float64(e.step)/float64(e.fps)
		if t >= e.window.End || e.step >= e.estimated {
			e.finished = true
			return nil, io.EOF
		}
		e.step++

		buf := e.pool.Get()
		err := e.dec.DecodeFrame(ctx, t, e.width, e.height, buf.Pix)
		if err != nil && ctx.Err() == nil {
			metrics.FrameSeekRetries.Inc()
			logging.Debug("Seek at %.3fs failed (%v), retrying once", t, err)
			err = e.dec.DecodeFrame(ctx, t, e.width, e.height, buf.Pix)
		}
		if err != nil {
			buf.Release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			e.skipped++
			metrics.FramesSkipped.Inc()
			if e.skipped > e.skipBudget {
				e.finished = true
				return nil, fmt.Errorf("skipped %d of %d estimated frames (budget %d): %w",
					e.skipped, e.estimated, e.skipBudget, err)
			}
			logging.Warn("Skipping frame at %.3fs after retry (%d/%d skips used): %v",
				t, e.skipped, e.skipBudget, err)
			continue
		}

		buf.Seq = e.seq
		buf.Timestamp = t
		e.seq++
		metrics.FramesExtracted.Inc()
		return buf, nil
	}
}
