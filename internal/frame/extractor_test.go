package frame

import (
	"context"
	"errors"
	"io"
	"testing"

	"gifforge/internal/config"
	"gifforge/internal/source"
)

// fakeDecoder decodes deterministically, failing at timestamps listed in
// failAt the given number of times.
type fakeDecoder struct {
	failAt  map[float64]int
	calls   int
	closed  bool
	onCall  func()
}

func (d *fakeDecoder) DecodeFrame(ctx context.Context, ts float64, w, h int, dst []byte) error {
	d.calls++
	if d.onCall != nil {
		d.onCall()
	}
	if left, ok := d.failAt[ts]; ok && left > 0 {
		d.failAt[ts] = left - 1
		return errors.New("seek failed")
	}
	dst[0] = byte(int(ts * 10)) // marker
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

func testExtractor(dec Decoder, durationSec float64, fps int) *Extractor {
	desc := &source.Descriptor{DurationSeconds: durationSec, Width: 640, Height: 480}
	req := source.Request{FPS: fps, Quality: 80, Format: source.FormatGIF}
	pool := NewPool(4, 4, 4)
	return NewExtractor(dec, desc, req, config.DefaultLimits(), pool)
}

func drain(t *testing.T, ex *Extractor) []*Buffer {
	t.Helper()
	var out []*Buffer
	for {
		buf, err := ex.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		out = append(out, buf)
	}
}

func TestExtractorFrameCount(t *testing.T) {
	ex := testExtractor(&fakeDecoder{}, 5, 10)

	if ex.Estimated() != 50 {
		t.Fatalf("Estimated = %d, want 50", ex.Estimated())
	}

	frames := drain(t, ex)
	if len(frames) != 50 {
		t.Errorf("extracted %d frames, want 50", len(frames))
	}
}

func TestExtractorSequenceStrictlyIncreasing(t *testing.T) {
	ex := testExtractor(&fakeDecoder{}, 2, 5)

	frames := drain(t, ex)
	for i, buf := range frames {
		if buf.Seq != uint64(i) {
			t.Fatalf("frame %d has Seq %d, want %d", i, buf.Seq, i)
		}
	}
}

func TestExtractorNotRestartable(t *testing.T) {
	ex := testExtractor(&fakeDecoder{}, 1, 5)
	drain(t, ex)

	if _, err := ex.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next after exhaustion = %v, want io.EOF", err)
	}
}

func TestExtractorRetriesOnceThenSucceeds(t *testing.T) {
	// First decode at t=0 fails once; retry succeeds.
	dec := &fakeDecoder{failAt: map[float64]int{0: 1}}
	ex := testExtractor(dec, 1, 5)

	frames := drain(t, ex)
	if len(frames) != 5 {
		t.Errorf("extracted %d frames, want 5", len(frames))
	}
	if ex.Skipped() != 0 {
		t.Errorf("Skipped = %d, want 0", ex.Skipped())
	}
}

func TestExtractorSkipsAfterSecondFailure(t *testing.T) {
	// t=0.2 fails both the attempt and the retry; frame is skipped.
	dec := &fakeDecoder{failAt: map[float64]int{0.2: 2}}
	ex := testExtractor(dec, 10, 5) // 50 estimated frames, budget 2

	frames := drain(t, ex)
	if ex.Skipped() != 1 {
		t.Fatalf("Skipped = %d, want 1", ex.Skipped())
	}
	if len(frames) != 49 {
		t.Errorf("extracted %d frames, want 49", len(frames))
	}

	// Sequence indexes stay consecutive across the skip.
	for i, buf := range frames {
		if buf.Seq != uint64(i) {
			t.Fatalf("frame %d has Seq %d after skip, want %d", i, buf.Seq, i)
		}
	}
}

func TestExtractorSkipBudgetExceededFatal(t *testing.T) {
	// 1 second at 5 fps = 5 estimated frames, budget floor(5*0.05) = 0:
	// the first skip is already over budget.
	dec := &fakeDecoder{failAt: map[float64]int{0.2: 2}}
	ex := testExtractor(dec, 1, 5)

	var err error
	for {
		_, err = ex.Next(context.Background())
		if err != nil {
			break
		}
	}
	if errors.Is(err, io.EOF) {
		t.Fatal("extraction finished cleanly, want skip budget error")
	}
}

func TestExtractorNeverExceedsEstimate(t *testing.T) {
	for _, tc := range []struct {
		duration float64
		fps      int
	}{
		{5, 10}, {1.05, 10}, {3.3, 7}, {0.5, 30},
	} {
		ex := testExtractor(&fakeDecoder{}, tc.duration, tc.fps)
		frames := drain(t, ex)
		if len(frames) > ex.Estimated() {
			t.Errorf("duration=%v fps=%d: extracted %d > estimate %d",
				tc.duration, tc.fps, len(frames), ex.Estimated())
		}
	}
}

func TestExtractorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dec := &fakeDecoder{}
	ex := testExtractor(dec, 5, 10)

	if _, err := ex.Next(ctx); err != nil {
		t.Fatalf("first Next() error: %v", err)
	}

	cancel()
	if _, err := ex.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next after cancel = %v, want context.Canceled", err)
	}
}

func TestExtractorTrimWindow(t *testing.T) {
	desc := &source.Descriptor{DurationSeconds: 10, Width: 640, Height: 480}
	req := source.Request{FPS: 10, Quality: 80, Format: source.FormatGIF,
		TrimEnabled: true, StartTime: 2, Duration: 3}
	pool := NewPool(4, 4, 4)
	ex := NewExtractor(&fakeDecoder{}, desc, req, config.DefaultLimits(), pool)

	if ex.Estimated() != 30 {
		t.Fatalf("Estimated = %d, want 30", ex.Estimated())
	}

	frames := drain(t, ex)
	if len(frames) != 30 {
		t.Fatalf("extracted %d frames, want 30", len(frames))
	}
	if frames[0].Timestamp != 2.0 {
		t.Errorf("first timestamp = %f, want 2.0", frames[0].Timestamp)
	}
	last := frames[len(frames)-1].Timestamp
	if last >= 5.0 {
		t.Errorf("last timestamp = %f, want < 5.0", last)
	}
}
