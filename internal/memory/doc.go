// Package memory configures the Go runtime memory limit from container
// environment variables and probes host memory for sizing the frame buffer
// pool. Frame extraction and encoding hold multiple full-size RGBA rasters
// in flight, so the heap budget matters more here than in a typical service.
package memory
