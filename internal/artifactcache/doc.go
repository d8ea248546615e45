// Package artifactcache persists finished conversion artifacts in SQLite,
// keyed by a fingerprint of the source file and every request parameter. A
// cache hit returns the stored bytes without touching ffmpeg.
package artifactcache
