// Package ensemble combines trained detectors into a weighted voting ensemble.
package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/engine"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/scoring"
)

// Member is one trained detector taking part in the vote.
type Member struct {
	Result   engine.Result
	Detector algorithms.Detector
}

// Weight is the voting weight: reputation times static detector weight.
func (m Member) Weight() float64 {
	return m.Result.ReputationScore * m.Detector.Weight()
}

// Ensemble votes over snapshots. A snapshot is anomalous when the weight of
// members flagging it reaches Threshold.
type Ensemble struct {
	Members   []Member
	Threshold float64
}

// Selector picks the best usable results per layer.
type Selector struct {
	logger   *slog.Logger
	store    Store
	metric   scoring.Metric
	perLayer int
}

// NewSelector constructs a Selector; store may be nil for dry runs.
// perLayer <= 0 keeps every usable result.
func NewSelector(logger *slog.Logger, store Store, metric scoring.Metric, perLayer int) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger, store: store, metric: metric, perLayer: perLayer}
}

// Select keeps the top usable results of each layer, best first according to
// the metric direction. Equal scores keep their input order.
func (s *Selector) Select(ctx context.Context, runID string, results []engine.Result) (*Ensemble, error) {
	byLayer := make(map[models.LayerType][]engine.Result)
	layers := make([]models.LayerType, 0)
	for _, res := range results {
		if !res.Usable {
			continue
		}
		if _, ok := byLayer[res.Layer]; !ok {
			layers = append(layers, res.Layer)
		}
		byLayer[res.Layer] = append(byLayer[res.Layer], res)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })

	members := make([]Member, 0)
	for _, layer := range layers {
		group := byLayer[layer]
		sort.SliceStable(group, func(i, j int) bool {
			return s.metric.Compare(group[i].MetricScore, group[j].MetricScore) > 0
		})
		if s.perLayer > 0 && len(group) > s.perLayer {
			group = group[:s.perLayer]
		}
		for _, res := range group {
			det, err := res.Detector()
			if err != nil {
				return nil, fmt.Errorf("rebuild %s: %w", res.Key(), err)
			}
			members = append(members, Member{Result: res, Detector: det})
		}
	}

	ens := NewEnsemble(members)
	s.logger.Info("ensemble selected",
		slog.String("run_id", runID),
		slog.Int("members", len(members)),
		slog.Float64("threshold", ens.Threshold),
	)

	if s.store != nil && len(members) > 0 {
		if err := s.store.StoreMembers(ctx, runID, members); err != nil {
			s.logger.Warn("ensemble store failed", slog.Any("error", err))
		}
	}
	return ens, nil
}

// NewEnsemble builds a majority-vote ensemble: the threshold is half the
// total member weight, or 1 when members carry no weight.
func NewEnsemble(members []Member) *Ensemble {
	total := 0.0
	for _, m := range members {
		total += m.Weight()
	}
	threshold := total / 2
	if threshold <= 0 {
		threshold = 1
	}
	return &Ensemble{Members: members, Threshold: threshold}
}

// Votes accumulates the weight of members flagging each snapshot.
func (e *Ensemble) Votes(exp *models.ExperimentData) scoring.Scores {
	votes := make(scoring.Scores, exp.Len())
	for _, snap := range exp.Snapshots() {
		votes[snap.Key()] = 0
	}
	for _, m := range e.Members {
		weight := m.Weight()
		for _, snap := range exp.BuildView(m.Detector.ViewSpec()) {
			if scoring.Anomalous(m.Detector.Evaluate(snap)) {
				votes[snap.Key()] += weight
			}
		}
	}
	return votes
}

// Evaluate scores the ensemble vote on one experiment.
func (e *Ensemble) Evaluate(metric scoring.Metric, exp *models.ExperimentData) float64 {
	return metric.EvaluateVoting(exp, e.Votes(exp), e.Threshold)
}
