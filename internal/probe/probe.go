package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"gifforge/internal/logging"
)

// DefaultTimeout bounds a single metadata probe. Probing is cheap; a probe
// that takes longer than this indicates a damaged file or a wedged decoder.
const DefaultTimeout = 15 * time.Second

// MediaInfo describes a probed source.
type MediaInfo struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	Container string  `json:"container"`
}

// ffprobe JSON payload, reduced to the fields we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file with ffprobe under an explicit deadline and
// returns its duration, dimensions, and codec. It has no side effects on the
// file.
func Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe timed out after %v: %w", DefaultTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	return parse(stdout.Bytes())
}

func parse(data []byte) (*MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{Container: out.Format.FormatName}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Codec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		// Some containers only carry duration on the stream.
		if info.Duration == 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}

	if info.Codec == "" {
		return nil, fmt.Errorf("no video stream found")
	}

	logging.Debug("Probed media: codec=%s %dx%d %.2fs container=%s",
		info.Codec, info.Width, info.Height, info.Duration, info.Container)
	return info, nil
}
