package mediatypes

import (
	"path/filepath"
	"strings"
)

// VideoExtensions maps file extensions to whether they are accepted as
// conversion sources.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// MimeTypes maps accepted extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
}

// IsVideo reports whether the path's extension is in the source allow-list.
func IsVideo(path string) bool {
	return VideoExtensions[NormalizeExt(path)]
}

// MimeType returns the MIME type for a path, or "" if the extension is not
// recognized.
func MimeType(path string) string {
	return MimeTypes[NormalizeExt(path)]
}

// Consistent reports whether a declared MIME type agrees with the path's
// extension. An empty declared type is treated as consistent: browsers and
// curl frequently omit or genericize it.
func Consistent(path, declared string) bool {
	if declared == "" || declared == "application/octet-stream" {
		return true
	}
	expected := MimeType(path)
	if expected == "" {
		return false
	}
	// video/mpeg covers both .mpeg and .mpg; compare the full type but
	// accept any video/* declaration for a recognized video extension.
	if declared == expected {
		return true
	}
	return strings.HasPrefix(declared, "video/")
}

// NormalizeExt returns the lowercased extension of path, including the dot.
func NormalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
