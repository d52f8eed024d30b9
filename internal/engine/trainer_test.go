package engine

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/scoring"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

// buildExperiment creates n one-second snapshots with cpu=10 and cpu=60 at
// every fault index.
func buildExperiment(t *testing.T, name string, n int, faults ...int) *models.ExperimentData {
	t.Helper()
	isFault := make(map[int]bool, len(faults))
	injections := make([]models.InjectedElement, 0, len(faults))
	for _, idx := range faults {
		isFault[idx] = true
		injections = append(injections, models.InjectedElement{Timestamp: epoch.Add(time.Duration(idx) * time.Second)})
	}
	obs := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		o := models.NewObservation(epoch.Add(time.Duration(i) * time.Second))
		value := "10"
		if isFault[i] {
			value = "60"
		}
		o.Add(models.Indicator{Name: "cpu", Layer: models.LayerOS}, models.IndicatorData{models.DataCategoryPlain: value})
		o.Add(models.Indicator{Name: "heap", Layer: models.LayerJVM}, models.IndicatorData{models.DataCategoryPlain: "512"})
		obs = append(obs, o)
	}
	exp, err := models.NewExperimentData(name, obs, nil, injections, nil, nil)
	if err != nil {
		t.Fatalf("build experiment: %v", err)
	}
	return exp
}

// fakeDetector scores by mode: "hit" flags detection points, "always" flags
// everything, "zero" never flags.
type fakeDetector struct {
	mode string
}

func (d fakeDetector) Evaluate(snap models.Snapshot) float64 {
	switch d.mode {
	case "hit":
		if snap.InjectedHere() {
			return 1.5
		}
		return 0
	case "always":
		return 2
	case "panic":
		panic("detector exploded")
	default:
		return 0
	}
}

func (fakeDetector) Weight() float64               { return 1 }
func (fakeDetector) DataType() models.DataCategory { return "" }
func (fakeDetector) Indicator() string             { return "" }
func (fakeDetector) ViewSpec() models.ViewSpec     { return models.ViewSpec{} }

func fakeFactory(_ algorithms.Type, _ *models.DataSeries, conf models.Configuration) (algorithms.Detector, error) {
	mode, err := conf.String("mode")
	if err != nil {
		return nil, err
	}
	if mode == "bad" {
		return nil, &models.ConfigurationError{Key: "mode", Value: mode, Reason: "unsupported"}
	}
	return fakeDetector{mode: mode}, nil
}

func conf(kv ...string) models.Configuration {
	items := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		items[kv[i]] = kv[i+1]
	}
	return models.NewConfiguration(items)
}

func tpMetric(t *testing.T) scoring.Metric {
	t.Helper()
	m, err := scoring.NewMetric(scoring.MetricTruePositives, false)
	if err != nil {
		t.Fatalf("metric: %v", err)
	}
	return m
}

func trainingSet(t *testing.T) []*models.ExperimentData {
	return []*models.ExperimentData{
		buildExperiment(t, "exp-a", 5, 2),
		buildExperiment(t, "exp-b", 4, 1),
	}
}

func TestTrainerPicksBestAndWritesReservedSlots(t *testing.T) {
	trainer := NewTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t),
		[]models.Configuration{conf("mode", "zero"), conf("mode", "hit")},
		tpMetric(t), scoring.NewConstantReputation(0.8), WithFactory(fakeFactory))

	result, err := trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if mode, _ := result.Configuration.Get("mode"); mode != "hit" {
		t.Fatalf("expected hit configuration, got %s", mode)
	}
	want := (0.2 + 0.25) / 2
	if result.MetricScore != want {
		t.Fatalf("expected metric %v, got %v", want, result.MetricScore)
	}
	if score, _ := result.Configuration.Get(models.ConfigScoreKey); score != strconv.FormatFloat(want, 'g', -1, 64) {
		t.Fatalf("score slot not written: %q", score)
	}
	if weight, _ := result.Configuration.Get(models.ConfigWeightKey); weight != "0.8" {
		t.Fatalf("weight slot not written: %q", weight)
	}
	if !result.Usable {
		t.Fatalf("detector with varying anomaly rates must be usable")
	}
	if result.Evaluated != 2 || result.Skipped != 0 {
		t.Fatalf("unexpected counters evaluated=%d skipped=%d", result.Evaluated, result.Skipped)
	}
	if result.Layer != models.LayerNone || result.SeriesName != "" {
		t.Fatalf("series-free result carries series metadata: %+v", result.Key())
	}
}

func TestTrainerIsDeterministic(t *testing.T) {
	data := trainingSet(t)
	candidates := []models.Configuration{conf("mode", "always"), conf("mode", "hit"), conf("mode", "zero")}

	run := func() Result {
		res, err := NewTrainer(algorithms.TypeRemoteCall, nil, data, candidates, tpMetric(t),
			scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(context.Background())
		if err != nil {
			t.Fatalf("train: %v", err)
		}
		return res
	}
	first, second := run(), run()
	if first.Configuration.Describe() != second.Configuration.Describe() ||
		first.MetricScore != second.MetricScore || first.ReputationScore != second.ReputationScore {
		t.Fatalf("non-deterministic training: %s vs %s", first.Configuration.Describe(), second.Configuration.Describe())
	}
}

func TestTrainerTieKeepsFirstCandidate(t *testing.T) {
	candidates := []models.Configuration{conf("mode", "hit", "id", "a"), conf("mode", "hit", "id", "b")}
	res, err := NewTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t), candidates, tpMetric(t),
		scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if id, _ := res.Configuration.Get("id"); id != "a" {
		t.Fatalf("expected first candidate to win the tie, got %s", id)
	}
}

func TestTrainerFlagsConstantDetector(t *testing.T) {
	res, err := NewFixedTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t), conf("mode", "zero"),
		tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Usable {
		t.Fatalf("constant detector must not be usable for voting")
	}
	if res.MetricScore != 0 {
		t.Fatalf("scores are kept for degenerate detectors, got %v", res.MetricScore)
	}
	if !res.Configuration.Has(models.ConfigScoreKey) {
		t.Fatalf("degenerate result must still carry its score")
	}
}

func TestTrainerSkipsBrokenCandidates(t *testing.T) {
	res, err := NewTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t),
		[]models.Configuration{conf("mode", "bad"), conf(), conf("mode", "hit")},
		tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Skipped != 2 || res.Evaluated != 1 {
		t.Fatalf("unexpected counters evaluated=%d skipped=%d", res.Evaluated, res.Skipped)
	}

	_, err = NewTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t),
		[]models.Configuration{conf("mode", "bad")},
		tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(context.Background())
	if !IsTrainingFailure(err) {
		t.Fatalf("expected training failure, got %v", err)
	}
	if !models.IsConfigurationError(err) {
		t.Fatalf("expected the configuration error to be wrapped, got %v", err)
	}
}

func TestTrainerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(algorithms.TypeRemoteCall, nil, trainingSet(t),
		[]models.Configuration{conf("mode", "hit")},
		tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory)).Train(ctx)
	if !IsTrainingFailure(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation failure, got %v", err)
	}
}

func TestTrainerOwnsDeepCopies(t *testing.T) {
	data := trainingSet(t)
	candidates := []models.Configuration{conf("mode", "hit")}
	a := NewTrainer(algorithms.TypeRemoteCall, nil, data, candidates, tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory))
	b := NewTrainer(algorithms.TypeRemoteCall, nil, data, candidates, tpMetric(t), scoring.NewBetaReputation(), WithFactory(fakeFactory))

	a.experiments[0].Next()
	a.experiments[0].Next()
	candidates[0].Set("mode", "zero")

	if b.experiments[0].Next(); !b.experiments[0].HasNext() {
		t.Fatalf("trainer b lost its snapshots")
	}
	if !data[0].HasNext() {
		t.Fatalf("original experiment cursor moved")
	}
	if _, ok := data[0].Next(); !ok {
		t.Fatalf("original experiment should start at the first snapshot")
	}
	if mode, _ := b.candidates[0].Get("mode"); mode != "hit" {
		t.Fatalf("candidate mutation leaked into trainer: %s", mode)
	}

	res, err := a.Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Configuration.Has(models.ConfigScoreKey) && b.candidates[0].Has(models.ConfigScoreKey) {
		t.Fatalf("result configuration shares storage with another trainer")
	}
}

func TestTrainerWithThresholdSeries(t *testing.T) {
	data := trainingSet(t)
	series := models.NewIndicatorSeries(models.Indicator{Name: "cpu", Layer: models.LayerOS}, models.DataCategoryPlain)
	candidates := []models.Configuration{conf("upper", "100"), conf("upper", "50"), conf("upper", "5")}

	res, err := NewTrainer(algorithms.TypeThreshold, &series, data, candidates, tpMetric(t), scoring.NewBetaReputation()).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if upper, _ := res.Configuration.Get("upper"); upper != "50" {
		t.Fatalf("expected upper=50 to win, got %s", upper)
	}
	if res.SeriesName != "cpu" || res.Layer != models.LayerOS || res.Category != models.DataCategoryPlain {
		t.Fatalf("unexpected series metadata %+v", res.Key())
	}
	det, err := res.Detector()
	if err != nil {
		t.Fatalf("rebuild detector: %v", err)
	}
	if det.Indicator() != "cpu" {
		t.Fatalf("unexpected indicator %s", det.Indicator())
	}
}

func TestRebuiltDetectorKeepsStaticWeight(t *testing.T) {
	series := models.NewIndicatorSeries(models.Indicator{Name: "cpu", Layer: models.LayerOS}, models.DataCategoryPlain)
	candidate := conf("upper", "50", models.ConfigDetectorWeightKey, "0.9")
	before, err := algorithms.Build(algorithms.TypeThreshold, &series, candidate)
	if err != nil {
		t.Fatalf("build candidate: %v", err)
	}

	res, err := NewTrainer(algorithms.TypeThreshold, &series, trainingSet(t), []models.Configuration{candidate},
		tpMetric(t), scoring.NewConstantReputation(0.3)).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if weight, _ := res.Configuration.Get(models.ConfigWeightKey); weight != "0.3" {
		t.Fatalf("reputation slot not written: %q", weight)
	}

	after, err := res.Detector()
	if err != nil {
		t.Fatalf("rebuild detector: %v", err)
	}
	if after.Weight() != before.Weight() || after.Weight() != 0.9 {
		t.Fatalf("static weight changed by training: before=%v after=%v", before.Weight(), after.Weight())
	}
}
