package supervise

import (
	"context"
	"sync"
	"time"

	"gifforge/internal/config"
	"gifforge/internal/logging"
	"gifforge/internal/metrics"
)

// Timeout computes the stall deadline for a job from its estimated frame
// count: a per-frame budget plus a fixed pad, never below the floor. A short
// clip and a long one get proportionally different patience.
func Timeout(estimatedFrames int, limits config.Limits) time.Duration {
	t := time.Duration(estimatedFrames)*limits.PerFrameTimeout + limits.TimeoutPad
	if t < limits.TimeoutFloor {
		t = limits.TimeoutFloor
	}
	return t
}

// Supervisor watches one conversion for forward progress. Any progress signal
// (a frame encoded, a stage transition) resets the stall deadline; a job that
// goes silent for the full deadline is aborted through the derived context.
//
// A Supervisor is not restartable: create one per conversion.
type Supervisor struct {
	timeout  time.Duration
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	events chan Event

	mu           sync.Mutex
	stage        Stage
	done         int
	skipped      int
	total        int
	lastProgress time.Time
	lastEmit     time.Time
	stalled      bool
	closed       bool
}

// New creates a supervisor for a job with the given frame estimate and
// derives the context the pipeline stages must run under.
func New(parent context.Context, estimatedFrames int, limits config.Limits) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		timeout:      Timeout(estimatedFrames, limits),
		interval:     limits.ProgressInterval,
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan Event, eventBuffer),
		stage:        StageLoading,
		total:        estimatedFrames,
		lastProgress: time.Now(),
	}
	logging.Debug("Supervisor armed: estimate=%d frames, stall deadline=%v", estimatedFrames, s.timeout)
	go s.watch()
	return s
}

// Context returns the context pipeline stages must respect. It is canceled
// when the parent is canceled, on stall, or on Stop.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Events returns the progress event stream. The channel is closed by Stop.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Stalled reports whether the supervisor aborted the job for lack of
// progress, distinguishing a stall from an upstream cancellation.
func (s *Supervisor) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

// Transition records entry into a new pipeline stage. Stage changes count as
// forward progress and always emit an event regardless of cadence.
func (s *Supervisor) Transition(stage Stage, message string) {
	s.mu.Lock()
	s.stage = stage
	s.lastProgress = time.Now()
	s.lastEmit = s.lastProgress
	ev := s.snapshotLocked(message)
	s.mu.Unlock()

	logging.Debug("Stage transition: %s", stage)
	s.emit(ev)
}

// FrameDone records one encoded frame. Events are emitted at the configured
// cadence rather than per frame so a fast encode cannot flood the stream.
func (s *Supervisor) FrameDone() {
	s.mu.Lock()
	s.done++
	now := time.Now()
	s.lastProgress = now

	if now.Sub(s.lastEmit) < s.interval {
		s.mu.Unlock()
		return
	}
	s.lastEmit = now
	ev := s.snapshotLocked("")
	s.mu.Unlock()

	s.emit(ev)
}

// FrameSkipped records a frame dropped after seek failure. Skips count as
// forward progress: the extractor is still moving through the clip.
func (s *Supervisor) FrameSkipped() {
	s.mu.Lock()
	s.skipped++
	s.lastProgress = time.Now()
	s.mu.Unlock()
}

// Stop tears the supervisor down and closes the event stream. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.events)
}

// emit delivers an event without ever blocking the pipeline: if no consumer
// is keeping up, the event is dropped on the floor. The send happens under
// the mutex so Stop cannot close the channel mid-send.
func (s *Supervisor) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// watch polls for stalls at a quarter of the deadline so a stall is detected
// at most 25% late.
func (s *Supervisor) watch() {
	ticker := time.NewTicker(s.timeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastProgress)
			closed := s.closed
			s.mu.Unlock()

			if closed {
				return
			}

			if idle > s.timeout {
				s.mu.Lock()
				s.stalled = true
				s.mu.Unlock()
				logging.Warn("Conversion stalled: no progress for %v (deadline %v)", idle, s.timeout)
				metrics.WorkerTimeouts.Inc()
				s.cancel()
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
