package source

import (
	"context"
	"fmt"

	"gifforge/internal/config"
	"gifforge/internal/logging"
	"gifforge/internal/mediatypes"
	"gifforge/internal/memory"
	"gifforge/internal/probe"
)

// ValidationError identifies the first violated validation check. Validation
// failures are fail-fast and never retried.
type ValidationError struct {
	// Check names the violated constraint: "empty", "size", "type",
	// "type_mismatch", "trim", "metadata", or "duration".
	Check   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Check, e.Message)
}

// FileMeta carries the cheap, pre-probe facts about a candidate source.
type FileMeta struct {
	Path         string
	SizeBytes    int64
	DeclaredType string
}

// ProbeFunc supplies media metadata for a candidate that passed the cheap
// checks. Injected so validation itself performs no I/O and the decoder is
// never touched for sources rejected on size or type.
type ProbeFunc func(ctx context.Context) (*probe.MediaInfo, error)

// Validate runs the ordered validation checks against a candidate source and
// returns a Descriptor with any non-fatal warnings, or the first violation.
// The probe runs only after every pre-probe check has passed.
func Validate(ctx context.Context, meta FileMeta, req Request, limits config.Limits, probeFn ProbeFunc) (*Descriptor, []string, error) {
	if meta.SizeBytes <= 0 {
		return nil, nil, &ValidationError{Check: "empty", Message: "source file is empty"}
	}
	if meta.SizeBytes > limits.MaxSourceBytes {
		return nil, nil, &ValidationError{
			Check: "size",
			Message: fmt.Sprintf("source is %s, maximum is %s",
				memory.FormatBytes(meta.SizeBytes), memory.FormatBytes(limits.MaxSourceBytes)),
		}
	}
	if !mediatypes.IsVideo(meta.Path) {
		return nil, nil, &ValidationError{
			Check:   "type",
			Message: fmt.Sprintf("unsupported source type %q", mediatypes.NormalizeExt(meta.Path)),
		}
	}
	if !mediatypes.Consistent(meta.Path, meta.DeclaredType) {
		return nil, nil, &ValidationError{
			Check: "type_mismatch",
			Message: fmt.Sprintf("declared type %q does not match extension %q",
				meta.DeclaredType, mediatypes.NormalizeExt(meta.Path)),
		}
	}
	if req.TrimEnabled && req.Duration <= 0 {
		return nil, nil, &ValidationError{
			Check:   "trim",
			Message: fmt.Sprintf("trim window must end after it starts (start=%.2f, duration=%.2f)", req.StartTime, req.Duration),
		}
	}
	if req.StartTime < 0 {
		return nil, nil, &ValidationError{
			Check:   "trim",
			Message: fmt.Sprintf("trim start cannot be negative, got %.2f", req.StartTime),
		}
	}

	info, err := probeFn(ctx)
	if err != nil {
		return nil, nil, &ValidationError{
			Check:   "metadata",
			Message: fmt.Sprintf("could not read media metadata: %v", err),
		}
	}

	if info.Duration <= 0 || info.Duration != info.Duration { // NaN check
		return nil, nil, &ValidationError{
			Check:   "metadata",
			Message: fmt.Sprintf("source duration is not positive (%f)", info.Duration),
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, nil, &ValidationError{
			Check:   "metadata",
			Message: fmt.Sprintf("source dimensions are not positive (%dx%d)", info.Width, info.Height),
		}
	}
	if float64(limits.MaxSourceDuration.Seconds()) < info.Duration {
		return nil, nil, &ValidationError{
			Check: "duration",
			Message: fmt.Sprintf("source runs %.1fs, maximum is %.0fs",
				info.Duration, limits.MaxSourceDuration.Seconds()),
		}
	}
	if req.TrimEnabled && req.StartTime >= info.Duration {
		return nil, nil, &ValidationError{
			Check:   "trim",
			Message: fmt.Sprintf("trim start %.2fs is past the end of a %.2fs source", req.StartTime, info.Duration),
		}
	}

	var warnings []string
	if meta.SizeBytes > limits.LargeSourceWarnBytes {
		warnings = append(warnings, fmt.Sprintf("large source file (%s), expect slower processing",
			memory.FormatBytes(meta.SizeBytes)))
	}

	desc := &Descriptor{
		Path:            meta.Path,
		SizeBytes:       meta.SizeBytes,
		MediaType:       mediatypes.MimeType(meta.Path),
		DurationSeconds: info.Duration,
		Width:           info.Width,
		Height:          info.Height,
		Codec:           info.Codec,
	}

	logging.Debug("Validated source %s: %dx%d %.2fs (%d warnings)",
		meta.Path, desc.Width, desc.Height, desc.DurationSeconds, len(warnings))
	return desc, warnings, nil
}
