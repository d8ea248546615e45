// Package probe extracts media metadata (duration, dimensions, codec) using
// ffprobe. Probes run under an explicit context deadline and return typed
// results; ffprobe must be installed and on PATH.
package probe
