package pipeline

import (
	"sync"

	"gifforge/internal/logging"
)

// Reclaimer tears down everything a conversion acquired: decoder processes,
// encoder processes, pooled buffers, temp files. It runs on every exit path
// and exactly once, no matter how many paths reach it.
type Reclaimer struct {
	mu    sync.Mutex
	once  sync.Once
	done  bool
	steps []func()
}

// Add registers a cleanup step. Steps run in reverse registration order,
// mirroring defer. Adding after reclamation runs the step immediately.
func (r *Reclaimer) Add(name string, fn func()) {
	wrapped := func() {
		logging.Debug("Reclaiming %s", name)
		fn()
	}

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		wrapped()
		return
	}
	r.steps = append(r.steps, wrapped)
	r.mu.Unlock()
}

// Reclaim runs all registered cleanup steps. Idempotent; later calls are
// no-ops.
func (r *Reclaimer) Reclaim() {
	r.once.Do(func() {
		r.mu.Lock()
		steps := r.steps
		r.steps = nil
		r.done = true
		r.mu.Unlock()

		for i := len(steps) - 1; i >= 0; i-- {
			steps[i]()
		}
	})
}
