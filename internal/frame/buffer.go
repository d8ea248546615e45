package frame

import (
	"sync"

	"gifforge/internal/metrics"
)

// Buffer is one rasterized frame: raw RGBA pixels at a fixed size, a
// monotonically increasing sequence index, and the source timestamp it was
// captured at. A Buffer has exactly one owner at a time: the extractor until
// hand-off, then an encoder worker, then the pool again.
type Buffer struct {
	Pix       []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp float64

	pool *Pool
}

// Release zeroes the pixel data and returns the buffer to its pool. Safe to
// call on a nil buffer; calling it twice returns the buffer twice, so owners
// must release exactly once.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.put(b)
}

// Pool reuses fixed-size pixel buffers across frames, replacing per-frame
// allocation and ad hoc GC hints with explicit arena-style reuse.
type Pool struct {
	width  int
	height int

	mu    sync.Mutex
	free  [][]byte
	max   int
	inUse int
}

// NewPool creates a pool of width×height RGBA buffers retaining at most
// maxRetained free buffers between uses.
func NewPool(width, height, maxRetained int) *Pool {
	if maxRetained < 1 {
		maxRetained = 1
	}
	return &Pool{width: width, height: height, max: maxRetained}
}

// Get returns a zeroed buffer of the pool's fixed dimensions.
func (p *Pool) Get() *Buffer {
	p.mu.Lock()
	var pix []byte
	if n := len(p.free); n > 0 {
		pix = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.inUse++
	p.mu.Unlock()

	if pix == nil {
		pix = make([]byte, p.width*p.height*4)
	}
	metrics.BufferPoolInUse.Inc()
	return &Buffer{Pix: pix, Width: p.width, Height: p.height, pool: p}
}

func (p *Pool) put(b *Buffer) {
	pix := b.Pix
	b.Pix = nil
	b.pool = nil
	for i := range pix {
		pix[i] = 0
	}

	p.mu.Lock()
	p.inUse--
	if len(p.free) < p.max {
		p.free = append(p.free, pix)
	}
	p.mu.Unlock()
	metrics.BufferPoolInUse.Dec()
}

// Trim drops all retained free buffers. Called periodically during long
// extractions as the memory reclamation hint.
func (p *Pool) Trim() {
	p.mu.Lock()
	p.free = nil
	p.mu.Unlock()
}

// InUse reports how many buffers are currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// FrameBytes returns the byte size of one buffer in this pool.
func (p *Pool) FrameBytes() int {
	return p.width * p.height * 4
}
