// Package metrics declares the Prometheus instrumentation for the conversion
// pipeline: job outcomes, per-stage durations, frame counters, encoder pool
// state, and artifact cache effectiveness. Metrics are registered via
// promauto at package init and exposed on /metrics.
package metrics
