package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gifforge/internal/logging"
	"gifforge/internal/metrics"
)

// responseWriter captures status code and bytes written for logging and
// metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging logs one line per request through the application logger.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket connections hijack the writer; skip wrapping.
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := newResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(wrapped, r)
		logging.Info("%s %s %d %dB %v", r.Method, r.URL.Path, wrapped.statusCode,
			wrapped.bytesWritten, time.Since(start).Round(time.Millisecond))
	})
}

// Metrics records Prometheus request metrics keyed by route template so
// per-job URLs don't explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" || r.URL.Path == "/livez" {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		wrapped := newResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(wrapped, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses per-job URLs onto their route template.
func normalizeRoute(path string) string {
	if !strings.HasPrefix(path, "/api/jobs/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return "/api/jobs/{id}/" + parts[1]
	}
	return "/api/jobs/{id}"
}
