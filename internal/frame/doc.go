// Package frame implements the extraction half of the conversion pipeline:
// fixed-size RGBA frame buffers with pooled reuse, decoder-driven frame
// stepping at a target frame rate, and adaptive batching that yields to the
// scheduler between batches.
//
// Frames are produced with strictly increasing sequence indexes and handed
// off by ownership transfer; a buffer is never shared between the extractor
// and an encoder worker. Decoding uses FFmpeg and requires it on PATH.
package frame
