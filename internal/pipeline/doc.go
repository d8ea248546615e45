// Package pipeline orchestrates a conversion end to end: source validation,
// batched frame extraction, parallel encoding with ordered output, and
// artifact assembly, all under a progress supervisor with a stall deadline.
// Every exit path runs the resource reclaimer exactly once.
package pipeline
