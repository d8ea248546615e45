package artifactcache

import (
	"crypto/md5" //nolint:gosec // cache key, not cryptographic
	"fmt"
	"time"

	"gifforge/internal/source"
)

// Fingerprint derives the cache key for one conversion: the source identity
// (path, size, mtime) plus every request parameter that changes the artifact.
// Touching the file or changing any knob yields a new key.
func Fingerprint(path string, size int64, modTime time.Time, req source.Request) string {
	h := md5.New() //nolint:gosec // cache key, not cryptographic
	fmt.Fprintf(h, "%s|%d|%d|", path, size, modTime.UnixNano())
	fmt.Fprintf(h, "%s|%d|%d|%dx%d|", req.Format, req.FPS, req.Quality, req.TargetWidth, req.TargetHeight)
	fmt.Fprintf(h, "%v|%f|%f", req.TrimEnabled, req.StartTime, req.Duration)
	return fmt.Sprintf("%x", h.Sum(nil))
}
