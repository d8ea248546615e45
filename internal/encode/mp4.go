package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"gifforge/internal/frame"
	"gifforge/internal/logging"
)

// MP4Encoder re-encodes raw RGBA frames into a fragmented MP4 via a single
// ffmpeg child process. Ordering is preserved by writing frames to ffmpeg's
// stdin in sequence order; the parallel worker step is a pass-through.
type MP4Encoder struct {
	width  int
	height int
	fps    int
	crf    int

	ctx context.Context

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	started bool
	closed  bool
}

// NewMP4 configures an MP4 encode. Dimensions must be even (libx264 requires
// it); the extractor's dimension capping guarantees this.
func NewMP4(ctx context.Context, width, height, fps, quality int) *MP4Encoder {
	return &MP4Encoder{
		width:  width,
		height: height,
		fps:    fps,
		crf:    crfForQuality(quality),
		ctx:    ctx,
	}
}

// crfForQuality maps the 1-100 quality scale onto x264's constant rate
// factor, spanning roughly visually-lossless (18) to heavily compressed (40).
func crfForQuality(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return 40 - (quality*22)/100
}

// CRF returns the computed constant rate factor.
func (m *MP4Encoder) CRF() int { return m.crf }

func (m *MP4Encoder) start() error {
	cmd := exec.CommandContext(m.ctx, "ffmpeg",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", m.width, m.height),
		"-r", strconv.Itoa(m.fps),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", strconv.Itoa(m.crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "frag_keyframe+empty_moov+faststart",
		"-f", "mp4",
		"-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	cmd.Stdout = &m.stdout
	cmd.Stderr = &m.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	m.cmd = cmd
	m.stdin = stdin
	m.started = true
	logging.Debug("MP4 encode started: %dx%d@%dfps crf=%d", m.width, m.height, m.fps, m.crf)
	return nil
}

// EncodeFrame implements Encoder. The CPU-heavy compression happens inside
// ffmpeg, so the worker step just forwards ownership of the buffer.
func (m *MP4Encoder) EncodeFrame(buf *frame.Buffer) (*Encoded, error) {
	return &Encoded{Seq: buf.Seq, Raw: buf}, nil
}

// Append implements Encoder; frames arrive in strictly increasing sequence
// order and are streamed straight into ffmpeg.
func (m *MP4Encoder) Append(e *Encoded) error {
	if e.Raw == nil {
		return fmt.Errorf("frame %d has no pixel data", e.Seq)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("encoder is closed")
	}
	if !m.started {
		if err := m.start(); err != nil {
			return err
		}
	}

	if _, err := m.stdin.Write(e.Raw.Pix); err != nil {
		return fmt.Errorf("frame %d write to ffmpeg failed: %w - %s", e.Seq, err, m.stderr.String())
	}
	return nil
}

// Finalize implements Encoder: closes ffmpeg's input, waits for it to flush
// the container, and returns the artifact bytes.
func (m *MP4Encoder) Finalize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil, fmt.Errorf("no frames to encode")
	}
	if m.closed {
		return nil, fmt.Errorf("encoder is closed")
	}
	m.closed = true

	if err := m.stdin.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ffmpeg input: %w", err)
	}
	if err := m.cmd.Wait(); err != nil {
		if m.ctx.Err() != nil {
			return nil, m.ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg encode failed: %w - %s", err, m.stderr.String())
	}
	return m.stdout.Bytes(), nil
}

// Close implements Encoder: aborts the ffmpeg process if still running.
// Idempotent; safe to call from the reclaimer after Finalize.
func (m *MP4Encoder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.started {
		m.closed = true
		return nil
	}
	m.closed = true

	_ = m.stdin.Close()
	if m.cmd.Process != nil {
		logging.Debug("Killing MP4 encode process")
		if err := m.cmd.Process.Kill(); err != nil {
			logging.Warn("failed to kill ffmpeg encode process: %v", err)
		}
	}
	_ = m.cmd.Wait()
	return nil
}
