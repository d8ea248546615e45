package encode

// reorderBuffer holds out-of-order worker completions and releases them in
// strictly increasing sequence order. It is not safe for concurrent use; the
// pool's single collector goroutine owns it.
type reorderBuffer struct {
	pending map[uint64]*Encoded
	next    uint64
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[uint64]*Encoded)}
}

// add stores a completion and returns every frame that is now ready to flush,
// in order. The returned slice is empty while the next expected sequence
// index has not arrived.
func (r *reorderBuffer) add(e *Encoded) []*Encoded {
	r.pending[e.Seq] = e

	var ready []*Encoded
	for {
		next, ok := r.pending[r.next]
		if !ok {
			return ready
		}
		delete(r.pending, r.next)
		ready = append(ready, next)
		r.next++
	}
}

// depth reports how many completions are currently held.
func (r *reorderBuffer) depth() int {
	return len(r.pending)
}
