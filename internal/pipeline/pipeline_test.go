package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/webp"

	"gifforge/internal/artifactcache"
	"gifforge/internal/config"
	"gifforge/internal/frame"
	"gifforge/internal/probe"
	"gifforge/internal/source"
	"gifforge/internal/supervise"
)

// fakeDecoder renders solid-color frames without touching ffmpeg.
type fakeDecoder struct {
	failAll bool
	blockOn bool // block until the context is canceled
	closed  bool
}

func (d *fakeDecoder) DecodeFrame(ctx context.Context, ts float64, width, height int, dst []byte) error {
	if d.blockOn {
		<-ctx.Done()
		return ctx.Err()
	}
	if d.failAll {
		return errors.New("seek failed")
	}
	shade := byte(int(ts*100) % 256)
	for i := 0; i < len(dst); i += 4 {
		dst[i] = shade
		dst[i+3] = 0xFF
	}
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

func writeTestSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testProbe(duration float64, w, h int) func(context.Context, string) (*probe.MediaInfo, error) {
	return func(context.Context, string) (*probe.MediaInfo, error) {
		return &probe.MediaInfo{Duration: duration, Width: w, Height: h, Codec: "h264", Container: "mp4"}, nil
	}
}

func testPipeline(t *testing.T, dec frame.Decoder) *Pipeline {
	t.Helper()
	p := New(config.DefaultLimits(), nil)
	p.decoderFor = func(string) frame.Decoder { return dec }
	p.probeFn = testProbe(1.0, 80, 40)
	return p
}

func TestConvertGIFSuccess(t *testing.T) {
	dec := &fakeDecoder{}
	p := testPipeline(t, dec)
	path := writeTestSource(t)

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	res, err := p.Convert(context.Background(), path, req)
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	if res.Canceled || res.Cached {
		t.Fatalf("unexpected result state: %+v", res)
	}
	if res.Size != len(res.Bytes) || res.Size == 0 {
		t.Fatalf("Size = %d, len(Bytes) = %d", res.Size, len(res.Bytes))
	}
	if res.FramesEncoded != 5 {
		t.Errorf("FramesEncoded = %d, want 5", res.FramesEncoded)
	}
	if res.FramesSkipped != 0 {
		t.Errorf("FramesSkipped = %d, want 0", res.FramesSkipped)
	}
	if res.ProcessingTime <= 0 {
		t.Error("ProcessingTime not set")
	}
	if len(res.Poster) == 0 {
		t.Error("no poster generated")
	} else if poster, err := webp.Decode(bytes.NewReader(res.Poster)); err != nil {
		t.Errorf("poster does not decode as webp: %v", err)
	} else if poster.Bounds().Dx() > 320 || poster.Bounds().Dy() > 320 {
		t.Errorf("poster %v exceeds preview bounds", poster.Bounds())
	}
	if !dec.closed {
		t.Error("decoder not closed by reclaimer")
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(res.Bytes))
	if err != nil {
		t.Fatalf("artifact does not decode as GIF: %v", err)
	}
	if len(decoded.Image) != 5 {
		t.Errorf("artifact has %d frames, want 5", len(decoded.Image))
	}
	b := decoded.Image[0].Bounds()
	if b.Dx() != 80 || b.Dy() != 40 {
		t.Errorf("frame dimensions %dx%d, want 80x40", b.Dx(), b.Dy())
	}
}

func TestConvertCanceled(t *testing.T) {
	dec := &fakeDecoder{blockOn: true}
	p := testPipeline(t, dec)
	path := writeTestSource(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	res, err := p.Convert(ctx, path, req)
	if err != nil {
		t.Fatalf("cancellation surfaced as error: %v", err)
	}
	if !res.Canceled {
		t.Fatal("Canceled = false after caller cancellation")
	}
	if len(res.Bytes) != 0 {
		t.Error("canceled result carries artifact bytes")
	}
	if !dec.closed {
		t.Error("decoder not reclaimed after cancellation")
	}
}

func TestConvertStallBecomesWorkerTimeout(t *testing.T) {
	dec := &fakeDecoder{blockOn: true}
	p := testPipeline(t, dec)
	p.limits.TimeoutFloor = 50 * time.Millisecond
	p.limits.PerFrameTimeout = 0
	p.limits.TimeoutPad = 0
	path := writeTestSource(t)

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	_, err := p.Convert(context.Background(), path, req)
	if err == nil {
		t.Fatal("expected worker_timeout failure for a stalled job")
	}
	if got := CategoryOf(err); got != CategoryWorkerTimeout {
		t.Errorf("category = %s, want %s", got, CategoryWorkerTimeout)
	}
	if !dec.closed {
		t.Error("decoder not reclaimed after stall abort")
	}
}

func TestClassifyAbortPrefersEncodeErrorOverStall(t *testing.T) {
	limits := config.DefaultLimits()
	limits.TimeoutFloor = 40 * time.Millisecond
	limits.PerFrameTimeout = 0
	limits.TimeoutPad = 0

	// A dead encoder emits no progress, so on a long job the stall deadline
	// fires while the fault drains. The deterministic fault must still win.
	sup := supervise.New(context.Background(), 10, limits)
	defer sup.Stop()
	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never stalled")
	}
	if !sup.Stalled() {
		t.Fatal("Stalled() = false after deadline")
	}

	p := testPipeline(t, &fakeDecoder{})
	encodeErr := errors.New("encoder crashed")
	err := p.classifyAbort(context.Background(), sup, context.Canceled, encodeErr)
	if err == nil {
		t.Fatal("classifyAbort() = nil, want encoding failure")
	}
	if got := CategoryOf(err); got != CategoryEncoding {
		t.Errorf("category = %s, want %s", got, CategoryEncoding)
	}
	if !errors.Is(err, encodeErr) {
		t.Error("encode error not preserved in chain")
	}
}

func TestConvertStageSequence(t *testing.T) {
	dec := &fakeDecoder{}
	p := testPipeline(t, dec)
	path := writeTestSource(t)

	events := make(chan supervise.Event, 64)
	stages := make(chan []supervise.Stage, 1)
	go func() {
		var seen []supervise.Stage
		for ev := range events {
			if len(seen) == 0 || seen[len(seen)-1] != ev.Stage {
				seen = append(seen, ev.Stage)
			}
		}
		stages <- seen
	}()

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	res, err := p.ConvertUpload(context.Background(), path, "video/mp4", req, events)
	if err != nil {
		t.Fatalf("ConvertUpload() error: %v", err)
	}
	if res.Size == 0 {
		t.Fatal("no artifact")
	}

	seen := <-stages
	if len(seen) == 0 {
		t.Fatal("no progress events observed")
	}
	if seen[0] != supervise.StageLoading {
		t.Errorf("first stage = %q, want loading", seen[0])
	}
	last := supervise.Stage("")
	order := map[supervise.Stage]int{
		supervise.StageLoading:    0,
		supervise.StageProcessing: 1,
		supervise.StageEncoding:   2,
		supervise.StageComplete:   3,
	}
	prev := 0
	for _, st := range seen {
		rank, ok := order[st]
		if !ok {
			t.Fatalf("unexpected stage %q", st)
		}
		if rank < prev {
			t.Fatalf("stage %q observed after %q", st, last)
		}
		prev, last = rank, st
	}
	if last != supervise.StageComplete {
		t.Errorf("final stage = %q, want complete", last)
	}
}

func TestConvertSkipBudgetExceeded(t *testing.T) {
	dec := &fakeDecoder{failAll: true}
	p := testPipeline(t, dec)
	path := writeTestSource(t)

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	_, err := p.Convert(context.Background(), path, req)
	if err == nil {
		t.Fatal("expected failure when every seek fails")
	}
	if got := CategoryOf(err); got != CategoryProcessing {
		t.Errorf("category = %s, want %s", got, CategoryProcessing)
	}
	if !dec.closed {
		t.Error("decoder not reclaimed after failure")
	}
}

func TestConvertValidationCategories(t *testing.T) {
	p := testPipeline(t, &fakeDecoder{})
	path := writeTestSource(t)

	tests := []struct {
		name string
		path string
		req  source.Request
		want Category
	}{
		{
			"bad request",
			path,
			source.Request{FPS: 0, Quality: 80, Format: source.FormatGIF},
			CategoryValidation,
		},
		{
			"missing file",
			filepath.Join(t.TempDir(), "absent.mp4"),
			source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF},
			CategoryLoading,
		},
		{
			"unsupported type",
			func() string {
				p := filepath.Join(t.TempDir(), "notes.txt")
				if err := os.WriteFile(p, []byte("hello"), 0o600); err != nil {
					t.Fatal(err)
				}
				return p
			}(),
			source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF},
			CategoryValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Convert(context.Background(), tt.path, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CategoryOf(err); got != tt.want {
				t.Errorf("category = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConvertProbeFailureIsLoading(t *testing.T) {
	p := testPipeline(t, &fakeDecoder{})
	p.probeFn = func(context.Context, string) (*probe.MediaInfo, error) {
		return nil, errors.New("moov atom not found")
	}
	path := writeTestSource(t)

	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}
	_, err := p.Convert(context.Background(), path, req)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := CategoryOf(err); got != CategoryLoading {
		t.Errorf("category = %s, want %s", got, CategoryLoading)
	}
}

func TestConvertEmptyWindow(t *testing.T) {
	p := testPipeline(t, &fakeDecoder{})
	path := writeTestSource(t)

	// Start at the very end without trimming: validation passes, but the
	// effective window contains no frames.
	req := source.Request{
		FPS: 5, Quality: 80, Format: source.FormatGIF,
		StartTime: 1.0,
	}
	_, err := p.Convert(context.Background(), path, req)
	if err == nil {
		t.Fatal("expected error for empty extraction window")
	}
	if got := CategoryOf(err); got != CategoryValidation {
		t.Errorf("category = %s, want %s", got, CategoryValidation)
	}
}

func TestConvertCacheHit(t *testing.T) {
	cache, err := artifactcache.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	p := New(config.DefaultLimits(), cache)
	p.decoderFor = func(string) frame.Decoder {
		t.Fatal("decoder created despite cache hit")
		return nil
	}
	p.probeFn = func(context.Context, string) (*probe.MediaInfo, error) {
		t.Fatal("probe ran despite cache hit")
		return nil, nil
	}

	path := writeTestSource(t)
	req := source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	fp := artifactcache.Fingerprint(path, info.Size(), info.ModTime(), req)
	want := []byte("cached-artifact")
	if err := cache.Set(context.Background(), fp, "gif", want, time.Hour); err != nil {
		t.Fatal(err)
	}

	res, err := p.Convert(context.Background(), path, req)
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if !res.Cached {
		t.Fatal("Cached = false for warmed cache")
	}
	if string(res.Bytes) != string(want) {
		t.Errorf("Bytes = %q, want %q", res.Bytes, want)
	}
}

func TestPipelineErrorFormatting(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := failure(CategoryEncoding, "encoding", "artifact assembly failed", inner)

	if !errors.Is(err, inner) {
		t.Error("PipelineError does not unwrap to its cause")
	}
	if CategoryOf(fmt.Errorf("wrapped: %w", err)) != CategoryEncoding {
		t.Error("CategoryOf failed through a wrapping layer")
	}
	if CategoryOf(errors.New("naked")) != CategoryResource {
		t.Error("unclassified errors should default to resource")
	}
}
