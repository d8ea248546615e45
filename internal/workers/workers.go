package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count derived from the CPUs actually available to
// the process. GOMAXPROCS respects container CPU limits (Go 1.19+), unlike
// runtime.NumCPU which reports the host.
//
// The multiplier adjusts for task characteristics (1.0 CPU-bound, 2.0
// I/O-bound). The limit caps the result; 0 means no cap. The GIFFORGE_WORKERS
// environment variable overrides the calculation.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("GIFFORGE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns a worker count for CPU-bound tasks (1 per CPU, capped).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForEncode returns the encoder pool size for a job with the given estimated
// frame count. Large jobs run with at most two workers: each worker pins a
// full frame plus palette tables, so lower parallelism bounds peak memory.
func ForEncode(estimatedFrames, cap, largeJobFrames int) int {
	n := ForCPU(cap)
	if largeJobFrames > 0 && estimatedFrames > largeJobFrames && n > 2 {
		n = 2
	}
	return n
}
