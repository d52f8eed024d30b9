package engine

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/metrics"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/scoring"
	"github.com/miradorstack/mirador-trainer/internal/utils"
)

// Factory builds a detector from a configuration.
type Factory func(t algorithms.Type, series *models.DataSeries, conf models.Configuration) (algorithms.Detector, error)

// Result is the outcome of one trainer.
type Result struct {
	AlgorithmType algorithms.Type
	// Series is nil for series-free algorithms.
	Series          *models.DataSeries
	SeriesName      string
	Layer           models.LayerType
	Category        models.DataCategory
	Configuration   models.Configuration
	MetricScore     float64
	ReputationScore float64
	// Usable is false when the winner flags every experiment alike and so
	// carries no information for ensemble voting.
	Usable    bool
	Evaluated int
	Skipped   int
}

// Key identifies the result slot of a trainer.
func (r Result) Key() ResultKey {
	return ResultKey{Algorithm: r.AlgorithmType, Series: r.SeriesName, Layer: r.Layer, Category: r.Category}
}

// Detector rebuilds the trained detector from the winning configuration.
func (r Result) Detector() (algorithms.Detector, error) {
	return algorithms.Build(r.AlgorithmType, r.Series, r.Configuration)
}

// Trainer selects the best configuration of one algorithm for one data series.
// It owns deep copies of its experiments and candidates.
type Trainer struct {
	logger      *slog.Logger
	factory     Factory
	algorithm   algorithms.Type
	series      *models.DataSeries
	experiments []*models.ExperimentData
	candidates  []models.Configuration
	fixed       bool
	metric      scoring.Metric
	reputation  scoring.Reputation
}

// Option customises a Trainer.
type Option func(*Trainer)

// WithLogger sets the trainer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithFactory replaces algorithms.Build as the detector factory.
func WithFactory(factory Factory) Option {
	return func(t *Trainer) {
		if factory != nil {
			t.factory = factory
		}
	}
}

// NewTrainer prepares a grid search over candidates. Candidate order decides ties.
func NewTrainer(
	algorithm algorithms.Type,
	series *models.DataSeries,
	experiments []*models.ExperimentData,
	candidates []models.Configuration,
	metric scoring.Metric,
	reputation scoring.Reputation,
	opts ...Option,
) *Trainer {
	t := &Trainer{
		logger:      slog.Default(),
		factory:     algorithms.Build,
		algorithm:   algorithm,
		experiments: models.CloneAll(experiments),
		candidates:  models.CloneConfigurations(candidates),
		metric:      metric,
		reputation:  reputation,
	}
	if series != nil {
		s := *series
		s.Indicators = append([]models.Indicator(nil), series.Indicators...)
		t.series = &s
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFixedTrainer scores a single configuration without searching.
func NewFixedTrainer(
	algorithm algorithms.Type,
	series *models.DataSeries,
	experiments []*models.ExperimentData,
	conf models.Configuration,
	metric scoring.Metric,
	reputation scoring.Reputation,
	opts ...Option,
) *Trainer {
	t := NewTrainer(algorithm, series, experiments, []models.Configuration{conf}, metric, reputation, opts...)
	t.fixed = true
	return t
}

func (t *Trainer) seriesName() string {
	if t.series == nil {
		return ""
	}
	return t.series.Name
}

func (t *Trainer) fail(reason string, err error) error {
	return &TrainingFailure{Algorithm: t.algorithm, Series: t.seriesName(), Reason: reason, Err: err}
}

// Train runs the search and returns the winning configuration with its
// metric and reputation scores written into the reserved slots.
// Cancellation is honoured between candidates.
func (t *Trainer) Train(ctx context.Context) (Result, error) {
	if len(t.experiments) == 0 {
		return Result{}, t.fail("no training experiments", nil)
	}
	if len(t.candidates) == 0 {
		return Result{}, t.fail("no candidate configurations", nil)
	}

	views, err := t.buildViews()
	if err != nil {
		return Result{}, err
	}

	result := Result{
		AlgorithmType: t.algorithm,
		Series:        t.series,
		SeriesName:    t.seriesName(),
		Layer:         models.LayerNone,
	}
	if t.series != nil {
		result.Layer = t.series.Layer
		result.Category = t.series.Category
	}

	var best *models.Configuration
	bestScore := math.NaN()
	for i, conf := range t.candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, t.fail("cancelled", err)
		}
		det, err := t.factory(t.algorithm, t.series, conf)
		if err != nil {
			result.Skipped++
			metrics.ObserveCandidate(metrics.OutcomeSkipped)
			t.logger.Warn("skipping candidate configuration",
				slog.String("algorithm", string(t.algorithm)),
				slog.String("series", t.seriesName()),
				slog.Int("candidate", i),
				slog.Any("error", err),
			)
			continue
		}
		result.Evaluated++
		metrics.ObserveCandidate(metrics.OutcomeSuccess)

		score := t.averageMetric(det, views)
		if best == nil || t.metric.Compare(score, bestScore) > 0 {
			chosen := conf.Clone()
			best = &chosen
			bestScore = score
		}
		if t.fixed {
			break
		}
	}
	if best == nil {
		return Result{}, t.fail("no candidate configuration could be built", nil)
	}

	det, err := t.factory(t.algorithm, t.series, *best)
	if err != nil {
		return Result{}, t.fail("rebuild winning configuration", err)
	}

	metricScores := make([]float64, 0, len(views))
	rates := make([]float64, 0, len(views))
	reputations := make([]float64, 0, len(views))
	for _, view := range views {
		eval := t.metric.EvaluateDetector(det, view)
		metricScores = append(metricScores, eval.Value)
		rates = append(rates, eval.AnomalyRate)
		reputations = append(reputations, t.reputation.Evaluate(det, view))
	}

	result.MetricScore = utils.Mean(metricScores)
	result.ReputationScore = utils.Mean(reputations)
	result.Usable = utils.StdDev(rates, utils.Mean(rates)) != 0

	best.Set(models.ConfigWeightKey, strconv.FormatFloat(result.ReputationScore, 'g', -1, 64))
	best.Set(models.ConfigScoreKey, strconv.FormatFloat(result.MetricScore, 'g', -1, 64))
	result.Configuration = *best

	t.logger.Debug("trainer finished",
		slog.String("algorithm", string(t.algorithm)),
		slog.String("series", t.seriesName()),
		slog.String("configuration", best.Describe()),
		slog.Float64("metric", result.MetricScore),
		slog.Float64("reputation", result.ReputationScore),
		slog.Bool("usable", result.Usable),
	)
	return result, nil
}

// buildViews projects every experiment once, using the first buildable
// candidate as the reference for the view layout.
func (t *Trainer) buildViews() ([][]models.Snapshot, error) {
	var spec models.ViewSpec
	found := false
	var lastErr error
	for _, conf := range t.candidates {
		det, err := t.factory(t.algorithm, t.series, conf)
		if err != nil {
			lastErr = err
			continue
		}
		spec = det.ViewSpec()
		found = true
		break
	}
	if !found {
		return nil, t.fail("no candidate configuration could be built", lastErr)
	}

	views := make([][]models.Snapshot, 0, len(t.experiments))
	for _, exp := range t.experiments {
		views = append(views, exp.BuildView(spec))
	}
	return views, nil
}

func (t *Trainer) averageMetric(det algorithms.Detector, views [][]models.Snapshot) float64 {
	scores := make([]float64, 0, len(views))
	for _, view := range views {
		scores = append(scores, t.metric.Evaluate(view, scoring.ScoreSnapshots(det, view)))
	}
	return utils.Mean(scores)
}
