package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate duplicates: %v", err)
	}
}

func TestObserveNormalisesOutcomes(t *testing.T) {
	before := testutil.ToFloat64(trainingsTotal.WithLabelValues(OutcomeSuccess))
	ObserveTraining(-time.Second, "unknown")
	if got := testutil.ToFloat64(trainingsTotal.WithLabelValues(OutcomeSuccess)); got != before+1 {
		t.Fatalf("expected unknown outcome to count as success, got %v -> %v", before, got)
	}

	degenerate := testutil.ToFloat64(trainingsTotal.WithLabelValues(OutcomeDegenerate))
	ObserveTraining(time.Millisecond, OutcomeDegenerate)
	if got := testutil.ToFloat64(trainingsTotal.WithLabelValues(OutcomeDegenerate)); got != degenerate+1 {
		t.Fatalf("expected degenerate counter to grow")
	}

	skipped := testutil.ToFloat64(candidatesTotal.WithLabelValues(OutcomeSkipped))
	ObserveCandidate(OutcomeSkipped)
	ObserveCandidate(OutcomeError)
	if got := testutil.ToFloat64(candidatesTotal.WithLabelValues(OutcomeSkipped)); got != skipped+1 {
		t.Fatalf("expected one skipped candidate, got %v", got-skipped)
	}
}
