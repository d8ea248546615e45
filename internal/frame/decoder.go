package frame

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"gifforge/internal/logging"
)

// Decoder produces one rasterized frame at a requested timestamp. Seeking
// suspends until the decoder reports the frame ready; implementations are
// driven serially by the extractor and never called concurrently.
type Decoder interface {
	// DecodeFrame seeks to timestamp (seconds) and writes width×height
	// RGBA pixels into dst, which must be exactly width*height*4 bytes.
	DecodeFrame(ctx context.Context, timestamp float64, width, height int, dst []byte) error

	// Close stops any in-flight decode and releases the decoder. Safe to
	// call more than once.
	Close() error
}

// FFmpegDecoder decodes single frames by accurate-seeking an ffmpeg child
// process and reading raw RGBA off its stdout.
type FFmpegDecoder struct {
	path string

	mu      sync.Mutex
	current *exec.Cmd
	closed  bool
}

// NewFFmpegDecoder creates a decoder for the given source file. FFmpeg must
// be installed and on PATH.
func NewFFmpegDecoder(path string) *FFmpegDecoder {
	return &FFmpegDecoder{path: path}
}

// DecodeFrame implements Decoder.
func (d *FFmpegDecoder) DecodeFrame(ctx context.Context, timestamp float64, width, height int, dst []byte) error {
	if want := width * height * 4; len(dst) != want {
		return fmt.Errorf("destination buffer is %d bytes, want %d", len(dst), want)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("decoder is closed")
	}
	d.mu.Unlock()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 6, 64),
		"-i", d.path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("decoder is closed")
	}
	if err := cmd.Start(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	d.current = cmd
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.current = nil
		d.mu.Unlock()
	}()

	_, readErr := io.ReadFull(stdout, dst)
	// Drain any trailing bytes so ffmpeg can exit cleanly.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("short frame read at %.3fs: %w - %s", timestamp, readErr, stderr.String())
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg decode at %.3fs: %w - %s", timestamp, waitErr, stderr.String())
	}
	return nil
}

// Close implements Decoder. It kills any in-flight decode process.
func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.current != nil && d.current.Process != nil {
		logging.Debug("Killing in-flight decode for %s", d.path)
		if err := d.current.Process.Kill(); err != nil {
			logging.Warn("failed to kill decode process for %s: %v", d.path, err)
		}
	}
	return nil
}
