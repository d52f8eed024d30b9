package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, "sqlite", filepath.Join(t.TempDir(), "trainer.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func sampleRun(id string) RunRecord {
	return RunRecord{
		ID:   id,
		Name: "experiment " + id,
		Observations: []ObservationRecord{
			{Timestamp: "2024-01-01T00:00:01Z", Indicator: "cpu", Layer: "CENTOS", Category: "PLAIN", Value: "11"},
			{Timestamp: "2024-01-01T00:00:00Z", Indicator: "cpu", Layer: "CENTOS", Category: "PLAIN", Value: "10"},
		},
		Calls:      []CallRecord{{Service: "login", Start: "2024-01-01T00:00:00Z", End: "2024-01-01T00:00:01Z", ResponseCode: "200"}},
		Injections: []InjectionRecord{{Timestamp: "2024-01-01T00:00:01Z", Description: "cpu hog", DurationSeconds: 5}},
		Stats:      []StatRecord{{Service: "login", Scope: "all", Avg: 1, Std: 0.2}},
		Timings:    []TimingRecord{{Kind: "probe", Layer: "CENTOS", Value: 12}},
	}
}

func TestSQLStoreRoundTripsRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("b"), started.Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("a"), started); err != nil {
		t.Fatalf("save: %v", err)
	}
	// saving again replaces the previous copy
	if err := store.SaveRun(ctx, sampleRun("a"), started); err != nil {
		t.Fatalf("save: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a" || !runs[0].StartedAt.Equal(started) {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	rec, err := store.LoadRun(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Observations) != 2 || rec.Observations[0].Value != "10" {
		t.Fatalf("expected observations ordered by time, got %+v", rec.Observations)
	}
	if len(rec.Calls) != 1 || len(rec.Injections) != 1 || len(rec.Stats) != 1 || len(rec.Timings) != 1 {
		t.Fatalf("unexpected record counts: %+v", rec)
	}
	if rec.Injections[0].DurationSeconds != 5 || rec.Stats[0].Std != 0.2 {
		t.Fatalf("unexpected values: %+v %+v", rec.Injections[0], rec.Stats[0])
	}

	if _, err := store.LoadRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStoreTrainedConfigurations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []TrainedRecord{
		{TrainingID: "t1", Algorithm: "HIST", Series: "cpu", Layer: "CENTOS", Category: "PLAIN", Parameters: `{"sigma":"2"}`, MetricScore: 0.5, ReputationScore: 0.8, Usable: true},
		{TrainingID: "t1", Algorithm: "RCC", Layer: "NO_LAYER", Parameters: `{"rcc_weight":"1"}`, MetricScore: 0.1, ReputationScore: 0.4},
		{TrainingID: "t2", Algorithm: "RCC", Layer: "NO_LAYER", Parameters: `{}`},
	}
	if err := store.StoreTrained(ctx, records); err != nil {
		t.Fatalf("store trained: %v", err)
	}

	got, err := store.ListTrained(ctx, "t1")
	if err != nil {
		t.Fatalf("list trained: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two records, got %d", len(got))
	}
	if got[0].Algorithm != "HIST" || !got[0].Usable || got[1].Usable || got[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected trained records: %+v", got)
	}
}

func TestOpenSQLStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenSQLStore(context.Background(), "mysql", "dsn", nil); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
