package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/dataset"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/repo"
)

type runSourceStub struct {
	runs map[string]repo.RunRecord
	ids  []string
}

func (r *runSourceStub) ListRuns(context.Context) ([]repo.RunSummary, error) {
	out := make([]repo.RunSummary, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, repo.RunSummary{ID: id})
	}
	return out, nil
}

func (r *runSourceStub) LoadRun(_ context.Context, id string) (repo.RunRecord, error) {
	rec, ok := r.runs[id]
	if !ok {
		return repo.RunRecord{}, repo.ErrRunNotFound
	}
	return rec, nil
}

type trainedStoreStub struct {
	records []repo.TrainedRecord
}

func (t *trainedStoreStub) StoreTrained(_ context.Context, records []repo.TrainedRecord) error {
	t.records = append(t.records, records...)
	return nil
}

// cpuRun samples cpu once per second for ten seconds; faulty seconds spike to 100.
func cpuRun(id string, faults ...int) repo.RunRecord {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	faulty := make(map[int]bool, len(faults))
	rec := repo.RunRecord{ID: id}
	for _, f := range faults {
		faulty[f] = true
		rec.Injections = append(rec.Injections, repo.InjectionRecord{
			Timestamp:   start.Add(time.Duration(f) * time.Second).Format(time.RFC3339),
			Description: "cpu hog",
		})
	}
	for i := 0; i < 10; i++ {
		value := "10"
		if faulty[i] {
			value = "100"
		}
		rec.Observations = append(rec.Observations, repo.ObservationRecord{
			Timestamp: start.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			Indicator: "cpu",
			Layer:     "CENTOS",
			Category:  "PLAIN",
			Value:     value,
		})
	}
	return rec
}

func newTestService(store TrainedStore) *TrainerService {
	source := &runSourceStub{
		runs: map[string]repo.RunRecord{"a": cpuRun("a", 5), "b": cpuRun("b", 3, 7)},
		ids:  []string{"a", "b"},
	}
	candidates := algorithms.Candidates{
		algorithms.TypeThreshold: {
			models.NewConfiguration(map[string]string{"upper": "5"}),
			models.NewConfiguration(map[string]string{"upper": "50"}),
		},
	}
	settings := Settings{
		Workers:          2,
		Metric:           "TP",
		Reputation:       "BETA",
		ReputationValue:  1,
		Categories:       []string{"PLAIN"},
		EnsemblePerLayer: 3,
	}
	return NewTrainerService(nil, dataset.NewLoader(source, 0, nil), candidates, settings, store)
}

func TestTrainSelectsBestThresholdAndScoresEnsemble(t *testing.T) {
	store := &trainedStoreStub{}
	service := newTestService(store)

	resp, err := service.Train(context.Background(), TrainRequest{Metric: "fscore"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Experiments) != 2 {
		t.Fatalf("expected 2 experiments, got %v", resp.Experiments)
	}

	results := resp.Report.Results()
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d (failures %v)", len(results), resp.Report.Failures())
	}
	best := results[0]
	if upper, _ := best.Configuration.Get("upper"); upper != "50" {
		t.Fatalf("expected upper=50 to win, got %s", upper)
	}
	if math.Abs(best.MetricScore-1) > 1e-9 {
		t.Fatalf("expected perfect f-score, got %v", best.MetricScore)
	}
	if !best.Usable {
		t.Fatalf("expected differing anomaly rates to be usable")
	}
	if !best.Configuration.Has(models.ConfigScoreKey) || !best.Configuration.Has(models.ConfigWeightKey) {
		t.Fatalf("expected reserved slots to be written: %s", best.Configuration.Describe())
	}

	if len(resp.Ensemble.Members) != 1 {
		t.Fatalf("expected one ensemble member, got %d", len(resp.Ensemble.Members))
	}
	for _, score := range resp.EnsembleScores {
		if math.Abs(score.Value-1) > 1e-9 {
			t.Fatalf("unexpected ensemble score on %s: %v", score.Experiment, score.Value)
		}
	}

	if len(store.records) != 1 {
		t.Fatalf("expected ensemble member to be persisted, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.TrainingID != resp.Report.RunID || rec.Algorithm != string(algorithms.TypeThreshold) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.Contains(rec.Parameters, `"upper":"50"`) {
		t.Fatalf("unexpected parameters %s", rec.Parameters)
	}
}

func TestTrainRejectsInvalidRequests(t *testing.T) {
	service := newTestService(nil)

	cases := []TrainRequest{
		{Metric: "accuracy"},
		{Reputation: "karma"},
		{Algorithms: []string{"NOPE"}},
		{Algorithms: []string{string(algorithms.TypeHistorical)}},
	}
	for i, req := range cases {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			_, err := service.Train(context.Background(), req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
}

func TestTrainUnknownRunYieldsNoExperiments(t *testing.T) {
	service := newTestService(nil)

	_, err := service.Train(context.Background(), TrainRequest{Runs: []string{"missing"}})
	if err == nil {
		t.Fatalf("expected error for missing run")
	}
}

func TestTrainWithoutStoreStillSelects(t *testing.T) {
	service := newTestService(nil)
	absolute := true

	resp, err := service.Train(context.Background(), TrainRequest{Absolute: &absolute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Metric.Absolute() {
		t.Fatalf("expected absolute override to apply")
	}
	if service.LatencyP95() <= 0 {
		t.Fatalf("expected latency to be tracked")
	}
}
