package frame

import (
	"context"
	"errors"
	"io"
	"runtime"
)

// trimInterval is how many frames pass between buffer pool trims, the
// cooperative stand-in for a garbage collection hint during long extractions.
const trimInterval = 20

// BatchSize returns the adaptive extraction batch size for a frame rate:
// clamp(30/fps, 1, 5). Higher frame rates get smaller batches so no single
// scheduling turn monopolizes the thread, independent of video length.
func BatchSize(fps int) int {
	if fps <= 0 {
		return 1
	}
	size := 30 / fps
	if size < 1 {
		return 1
	}
	if size > 5 {
		return 5
	}
	return size
}

// Batcher drains an extractor in small batches, checking for cancellation at
// each batch boundary and yielding to the scheduler between batches.
type Batcher struct {
	size int
	pool *Pool
}

// NewBatcher creates a batcher sized for the request's frame rate.
func NewBatcher(fps int, pool *Pool) *Batcher {
	return &Batcher{size: BatchSize(fps), pool: pool}
}

// Size returns the batch size in frames.
func (b *Batcher) Size() int { return b.size }

// Run pulls every frame from the extractor and passes each to emit in order.
// Cancellation is observed at the start of every batch; an emit error stops
// extraction immediately.
func (b *Batcher) Run(ctx context.Context, ex *Extractor, emit func(*Buffer) error) error {
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for i := 0; i < b.size; i++ {
			buf, err := ex.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			if err := emit(buf); err != nil {
				buf.Release()
				return err
			}

			count++
			if count%trimInterval == 0 {
				b.pool.Trim()
			}
		}

		runtime.Gosched()
	}
}
