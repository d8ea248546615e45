package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitializeMetrics(t *testing.T) {
	// Must not panic and must leave every pre-populated series at zero.
	InitializeMetrics()

	if got := testutil.ToFloat64(ConversionsTotal.WithLabelValues("gif", "complete")); got != 0 {
		t.Errorf("pre-populated counter = %f, want 0", got)
	}
	if got := testutil.ToFloat64(ConversionsTotal.WithLabelValues("mp4", "timeout")); got != 0 {
		t.Errorf("pre-populated counter = %f, want 0", got)
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(FramesExtracted)
	FramesExtracted.Inc()
	after := testutil.ToFloat64(FramesExtracted)

	if after != before+1 {
		t.Errorf("FramesExtracted did not increment: before=%f after=%f", before, after)
	}
}
