package main

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/dataset"
)

func TestSyntheticRunBuildsExperiment(t *testing.T) {
	rec, _ := syntheticRun(1, 120, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	exp, err := dataset.Build(rec, 0)
	if err != nil {
		t.Fatalf("synthetic run rejected: %v", err)
	}
	if exp.Len() != 120 {
		t.Fatalf("expected 120 snapshots, got %d", exp.Len())
	}
	if len(exp.Injections) != 2 {
		t.Fatalf("expected faults at 40s and 80s, got %d", len(exp.Injections))
	}
	if exp.Injections[0].Window != 5*time.Second {
		t.Fatalf("expected injection duration to set the window, got %s", exp.Injections[0].Window)
	}
}

func TestSyntheticRunIsDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, _ := syntheticRun(2, 60, start)
	b, _ := syntheticRun(2, 60, start)
	if len(a.Observations) != len(b.Observations) || a.Observations[10] != b.Observations[10] {
		t.Fatalf("expected identical runs for the same index")
	}
}
