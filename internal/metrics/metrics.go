package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifforge_conversions_total",
			Help: "Total number of conversion jobs by output format and outcome",
		},
		[]string{"format", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifforge_conversion_duration_seconds",
			Help:    "End-to-end conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"format"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifforge_stage_duration_seconds",
			Help:    "Per-stage pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifforge_conversions_in_flight",
			Help: "Number of conversion jobs currently running",
		},
	)
)

// Frame metrics
var (
	FramesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_frames_extracted_total",
			Help: "Total frames rasterized from source videos",
		},
	)

	FramesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_frames_skipped_total",
			Help: "Total frames skipped after repeated seek failures",
		},
	)

	FramesEncoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_frames_encoded_total",
			Help: "Total frames appended to output artifacts",
		},
	)

	FrameSeekRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_frame_seek_retries_total",
			Help: "Total single-frame seek retries",
		},
	)
)

// Encoder pool metrics
var (
	EncoderWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifforge_encoder_workers",
			Help: "Worker count of the most recently started encoder pool",
		},
	)

	EncoderReorderDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifforge_encoder_reorder_depth",
			Help: "Out-of-order completions currently held for reordering",
		},
	)

	WorkerTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_worker_timeouts_total",
			Help: "Conversions aborted by the stall supervisor",
		},
	)
)

// Cache and ledger metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_artifact_cache_hits_total",
			Help: "Conversions satisfied from the artifact cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gifforge_artifact_cache_misses_total",
			Help: "Cache lookups that required a full conversion",
		},
	)

	BufferPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifforge_frame_buffers_in_use",
			Help: "Frame buffers currently checked out of the pool",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifforge_http_requests_total",
			Help: "Total HTTP requests by method, route, and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gifforge_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// InitializeMetrics pre-populates expected label combinations so every metric
// is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, format := range []string{"gif", "mp4"} {
		for _, status := range []string{"complete", "failed", "canceled", "timeout", "cache_hit"} {
			ConversionsTotal.WithLabelValues(format, status)
		}
		ConversionDuration.WithLabelValues(format)
	}
	for _, stage := range []string{"validating", "loading", "processing", "encoding"} {
		StageDuration.WithLabelValues(stage)
	}
}
