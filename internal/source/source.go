package source

import (
	"fmt"
)

// Format selects the output artifact type.
type Format string

const (
	// FormatGIF produces a palette-quantized animated GIF.
	FormatGIF Format = "gif"
	// FormatMP4 produces a re-encoded H.264 MP4 container.
	FormatMP4 Format = "mp4"
)

// Request is the caller-supplied conversion configuration. It is immutable
// for the lifetime of one conversion.
type Request struct {
	FPS          int     `json:"fps"`
	Quality      int     `json:"quality"`
	TargetWidth  int     `json:"width,omitempty"`
	TargetHeight int     `json:"height,omitempty"`
	StartTime    float64 `json:"startTime,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	TrimEnabled  bool    `json:"trimEnabled"`
	Format       Format  `json:"format"`
}

// Validate checks the request's own invariants, independent of any source.
func (r Request) Validate() error {
	if r.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", r.FPS)
	}
	if r.Quality < 1 || r.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", r.Quality)
	}
	if r.TargetWidth < 0 || r.TargetHeight < 0 {
		return fmt.Errorf("target dimensions cannot be negative")
	}
	switch r.Format {
	case FormatGIF, FormatMP4:
	default:
		return fmt.Errorf("unsupported output format %q", r.Format)
	}
	return nil
}

// Descriptor describes a validated source. Immutable; owned by one pipeline
// invocation.
type Descriptor struct {
	Path            string
	SizeBytes       int64
	MediaType       string
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
}

// Window is the effective extraction time range, clamped to the source.
type Window struct {
	Start float64
	End   float64
}

// Window computes the effective extraction range for a request against this
// descriptor. Start is clamped into [0, duration]; with trimming enabled the
// end is start plus the trim length, capped at the source duration.
func (d *Descriptor) Window(req Request) Window {
	start := req.StartTime
	if start < 0 {
		start = 0
	}
	if start > d.DurationSeconds {
		start = d.DurationSeconds
	}
	end := d.DurationSeconds
	if req.TrimEnabled {
		end = start + req.Duration
		if end > d.DurationSeconds {
			end = d.DurationSeconds
		}
	}
	return Window{Start: start, End: end}
}

// EstimatedFrames returns ceil((end-start)*fps) for this window.
func (w Window) EstimatedFrames(fps int) int {
	span := w.End - w.Start
	if span <= 0 {
		return 0
	}
	frames := int(span * float64(fps))
	if float64(frames) < span*float64(fps) {
		frames++
	}
	return frames
}
