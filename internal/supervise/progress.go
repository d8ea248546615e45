package supervise

// Stage identifies where a conversion currently is.
type Stage string

const (
	// StageLoading covers source validation and probing.
	StageLoading Stage = "loading"
	// StageProcessing covers frame extraction.
	StageProcessing Stage = "processing"
	// StageEncoding covers palette quantization and artifact assembly.
	StageEncoding Stage = "encoding"
	// StageComplete means the artifact is ready.
	StageComplete Stage = "complete"
)

// eventBuffer bounds the progress channel. Events beyond it are dropped,
// never queued without limit.
const eventBuffer = 64

// Event is one progress observation. Percent is derived from the frame
// estimate and clamped to [0,100]; the estimate can run slightly over when
// the real frame count exceeds it.
type Event struct {
	Stage         Stage   `json:"stage"`
	Percent       float64 `json:"percent"`
	Message       string  `json:"message,omitempty"`
	FramesDone    int     `json:"framesDone"`
	FramesSkipped int     `json:"framesSkipped"`
	FramesTotal   int     `json:"framesTotal"`
}

// snapshotLocked builds an Event from current state. Callers hold s.mu.
func (s *Supervisor) snapshotLocked(message string) Event {
	ev := Event{
		Stage:         s.stage,
		Message:       message,
		FramesDone:    s.done,
		FramesSkipped: s.skipped,
		FramesTotal:   s.total,
	}
	switch s.stage {
	case StageComplete:
		ev.Percent = 100
	default:
		if s.total > 0 {
			ev.Percent = float64(s.done) / float64(s.total) * 100
			if ev.Percent > 100 {
				ev.Percent = 100
			}
		}
	}
	return ev
}
