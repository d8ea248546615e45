// Package workers derives worker pool sizes from the CPUs available to the
// process, respecting container CPU limits via GOMAXPROCS. The encoder pool
// additionally shrinks for large jobs, trading parallelism for a lower
// per-worker memory footprint.
//
// The GIFFORGE_WORKERS environment variable overrides the automatic
// calculation in any environment where the defaults misbehave.
package workers
