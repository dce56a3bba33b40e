package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordJobCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(reg.jobsCompleted)
	RecordJobCompleted()
	after := testutil.ToFloat64(reg.jobsCompleted)
	if after != before+1 {
		t.Errorf("expected jobsCompleted to increment by 1, got %v -> %v", before, after)
	}
}

func TestRecordStageRetryIsLabeledByStage(t *testing.T) {
	RecordStageRetry("fetch")
	if got := testutil.ToFloat64(reg.jobRetries.WithLabelValues("fetch")); got < 1 {
		t.Errorf("expected at least one retry recorded for stage fetch, got %v", got)
	}
}

func TestObserveDurationsDoNotPanic(t *testing.T) {
	ObserveJobDuration(250 * time.Millisecond)
	ObserveSearchDuration(10 * time.Millisecond)
	ObserveFusionDuration(1 * time.Millisecond)
}

func TestRecordRetrieverFailureIsLabeledByRetriever(t *testing.T) {
	RecordRetrieverFailure("dense")
	if got := testutil.ToFloat64(reg.retrieverFailures.WithLabelValues("dense")); got < 1 {
		t.Errorf("expected at least one failure recorded for retriever dense, got %v", got)
	}
}
