package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStage(t *testing.T) {
	Init()

	before := testutil.ToFloat64(stageExecutionsTotal.WithLabelValues("content_extraction", "success"))
	ObserveStage("content_extraction", "success", 120*time.Millisecond)
	after := testutil.ToFloat64(stageExecutionsTotal.WithLabelValues("content_extraction", "success"))

	if after != before+1 {
		t.Errorf("stage counter = %v; want %v", after, before+1)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()

	base := testutil.ToFloat64(activeBatchWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeBatchWorkers); got != base+1 {
		t.Errorf("active workers = %v; want %v", got, base+1)
	}
}

func TestObserveIntegrityIssue(t *testing.T) {
	Init()

	before := testutil.ToFloat64(integrityIssuesTotal.WithLabelValues("archived_with_item"))
	ObserveIntegrityIssue("archived_with_item")
	if got := testutil.ToFloat64(integrityIssuesTotal.WithLabelValues("archived_with_item")); got != before+1 {
		t.Errorf("issue counter = %v; want %v", got, before+1)
	}
}
