package raster

import (
	"fmt"
	"sync"

	"gifforge/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsAvailable   bool
	vipsMu          sync.Mutex
)

// InitVips initializes libvips for poster export. Call once at startup; the
// pipeline works without it via the pure-Go fallback.
func InitVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsInitialized {
		return
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		if level <= vips.LogLevelError {
			logging.Error("[%s] %s", domain, msg)
		}
	}, vips.LogLevelError)

	// Conservative settings: posters are generated one at a time and the
	// encoder pool owns the CPU budget.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      32 * 1024 * 1024,
		MaxCacheSize:     50,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources. Idempotent.
func ShutdownVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable reports whether the accelerated path can be used.
func IsVipsAvailable() bool {
	vipsMu.Lock()
	defer vipsMu.Unlock()
	return vipsAvailable
}

// vipsPosterWebP shrinks raw RGBA pixels to fit maxDim and encodes WebP
// using libvips.
func vipsPosterWebP(pix []byte, width, height, maxDim, quality int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	ref, err := vips.NewImageFromMemory(pix, width, height, 4)
	if err != nil {
		return nil, fmt.Errorf("vips import failed: %w", err)
	}
	defer ref.Close()

	if err := ref.Thumbnail(maxDim, maxDim, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips thumbnail failed: %w", err)
	}

	out, _, err := ref.ExportWebp(&vips.WebpExportParams{
		Quality:         quality,
		StripMetadata:   true,
		ReductionEffort: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("vips webp export failed: %w", err)
	}
	return out, nil
}
