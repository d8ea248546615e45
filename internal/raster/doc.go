// Package raster bridges raw frame buffers and image encoders: zero-copy
// image.Image views of RGBA buffers and WebP poster generation with an
// optional libvips-accelerated path.
package raster
