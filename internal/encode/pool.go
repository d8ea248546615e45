package encode

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gifforge/internal/frame"
	"gifforge/internal/logging"
	"gifforge/internal/metrics"
)

// Encoded is one frame after the parallel encode step, awaiting ordered
// output. Exactly one of Paletted (GIF) or Raw (MP4 pass-through) is set; a
// retained Raw buffer is released by Append or by error cleanup.
type Encoded struct {
	Seq      uint64
	Paletted *image.Paletted
	Raw      *frame.Buffer
}

func (e *Encoded) release() {
	if e.Raw != nil {
		e.Raw.Release()
		e.Raw = nil
	}
}

// Encoder is one output format's encode strategy.
//
// EncodeFrame runs concurrently across pool workers and must be safe for
// parallel use; it takes ownership of the buffer on success and on error.
// Append runs on a single goroutine in strictly increasing sequence order.
// Finalize produces the artifact bytes; Close aborts and is idempotent.
type Encoder interface {
	EncodeFrame(buf *frame.Buffer) (*Encoded, error)
	Append(e *Encoded) error
	Finalize() ([]byte, error)
	Close() error
}

// Pool fans frame buffers out to parallel encode workers and flushes their
// completions back into sequence order.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the pool's worker count.
func (p *Pool) Workers() int { return p.workers }

// Run consumes frames until the channel closes, encoding in parallel while
// appending to enc in strictly increasing sequence order. onProgress is
// invoked once per appended frame. Any worker error aborts the whole job; no
// partial artifact survives because Finalize is never reached. onFatal, if
// non-nil, is invoked once with the first error so the caller can cancel the
// upstream producer instead of letting it drain the whole clip into a dead
// encoder.
func (p *Pool) Run(ctx context.Context, frames <-chan *frame.Buffer, enc Encoder, onProgress func(seq uint64), onFatal func(error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.EncoderWorkers.Set(float64(p.workers))
	logging.Debug("Encoder pool starting with %d workers", p.workers)

	completions := make(chan *Encoded, p.workers*2)

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
			if onFatal != nil {
				onFatal(err)
			}
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for buf := range frames {
				select {
				case <-ctx.Done():
					buf.Release()
					continue
				default:
				}

				seq := buf.Seq
				out, err := enc.EncodeFrame(buf)
				if err != nil {
					// EncodeFrame owns the buffer on every path.
					fail(fmt.Errorf("frame %d encode failed: %w", seq, err))
					continue
				}

				select {
				case completions <- out:
				case <-ctx.Done():
					out.release()
				}
			}
		}()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		reorder := newReorderBuffer()
		defer func() {
			// Drop anything still held after an abort.
			for _, e := range reorder.pending {
				e.release()
			}
		}()

		for out := range completions {
			ready := reorder.add(out)
			metrics.EncoderReorderDepth.Set(float64(reorder.depth()))

			for _, e := range ready {
				if ctx.Err() != nil {
					e.release()
					continue
				}
				seq := e.Seq
				if err := enc.Append(e); err != nil {
					e.release()
					fail(fmt.Errorf("frame %d append failed: %w", seq, err))
					continue
				}
				e.release()
				metrics.FramesEncoded.Inc()
				if onProgress != nil {
					onProgress(seq)
				}
			}
		}
	}()

	wg.Wait()
	close(completions)
	<-collectorDone
	metrics.EncoderReorderDepth.Set(0)

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
