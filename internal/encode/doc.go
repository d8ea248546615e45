// Package encode implements the parallel encoder pool and the output format
// strategies: palette-quantized animated GIF (median-cut, optional
// Floyd-Steinberg dithering, shared global palette for long animations) and
// fragmented MP4 via ffmpeg.
//
// Workers encode frames concurrently; a reorder buffer flushes completions
// back into strictly increasing sequence order, so the artifact's frame order
// matches extraction order regardless of which worker finished first. Any
// worker error aborts the whole job; no partial artifact is ever returned.
package encode
