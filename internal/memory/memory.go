package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"gifforge/internal/logging"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	// DefaultRatio is the share of the container memory limit given to
	// the Go heap. The remainder is reserved for FFmpeg child processes,
	// libvips buffers, and goroutine stacks.
	DefaultRatio = 0.85
)

// ConfigResult reports how GOMEMLIMIT was configured at startup.
type ConfigResult struct {
	// Configured indicates whether GOMEMLIMIT was set.
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", or "none".
	Source string

	// ContainerLimit is the container memory limit in bytes (0 if unset).
	ContainerLimit int64

	// GoMemLimit is the configured GOMEMLIMIT in bytes (0 if unset).
	GoMemLimit int64

	// Ratio is the memory ratio applied (0 if not applicable).
	Ratio float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container memory limit. Call
// early in main before significant allocations.
//
// Environment variables:
//   - GOMEMLIMIT: takes precedence if set (standard Go env var)
//   - MEMORY_LIMIT: container memory limit in bytes
//   - MEMORY_RATIO: share of the limit for the Go heap (default 0.85)
func ConfigureFromEnv() ConfigResult {
	result := ConfigResult{}

	if goMemLimitEnv := os.Getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	memLimitStr := os.Getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unconfigured")
		result.Source = "none"
		return result
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil {
		logging.Warn("Failed to parse MEMORY_LIMIT %q: %v", memLimitStr, err)
		result.Source = "none"
		return result
	}
	result.ContainerLimit = memLimit

	ratio := DefaultRatio
	if ratioStr := os.Getenv("MEMORY_RATIO"); ratioStr != "" {
		if parsed, err := strconv.ParseFloat(ratioStr, 64); err == nil && parsed > 0 && parsed <= 1.0 {
			ratio = parsed
		} else {
			logging.Warn("Invalid MEMORY_RATIO %q, using default %.2f", ratioStr, DefaultRatio)
		}
	}
	result.Ratio = ratio

	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.GoMemLimit = goMemLimit

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(memLimit))
	return result
}

// Available reports the host's currently available memory in bytes, or 0 if
// it cannot be determined. Used to size the frame buffer pool.
func Available() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logging.Debug("Could not probe host memory: %v", err)
		return 0
	}
	if vm.Available > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(vm.Available)
}

// FormatBytes formats a byte count as a human-readable string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
