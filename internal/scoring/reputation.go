package scoring

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

// ReputationType tags a reputation family.
type ReputationType string

const (
	// ReputationBeta is the expected value of a Beta distribution over
	// correct and wrong judgements: (good+1)/(good+bad+2).
	ReputationBeta ReputationType = "BETA"
	// ReputationConstant assigns the same reputation to every detector.
	ReputationConstant ReputationType = "CONSTANT"
	// ReputationMetric reuses a metric value, flipped for minimising ratios.
	ReputationMetric ReputationType = "METRIC"
)

// Reputation is a metric-independent trust score for a trained detector.
type Reputation struct {
	kind   ReputationType
	value  float64
	metric Metric
}

// NewBetaReputation returns the Beta reputation.
func NewBetaReputation() Reputation {
	return Reputation{kind: ReputationBeta}
}

// NewConstantReputation returns a reputation always equal to value.
func NewConstantReputation(value float64) Reputation {
	return Reputation{kind: ReputationConstant, value: value}
}

// NewMetricReputation returns a reputation derived from metric.
func NewMetricReputation(metric Metric) Reputation {
	return Reputation{kind: ReputationMetric, metric: metric}
}

// ParseReputation resolves a reputation tag. value feeds CONSTANT and metric feeds METRIC.
func ParseReputation(name string, value float64, metric Metric) (Reputation, error) {
	switch ReputationType(strings.ToUpper(strings.TrimSpace(name))) {
	case ReputationBeta:
		return NewBetaReputation(), nil
	case ReputationConstant:
		return NewConstantReputation(value), nil
	case ReputationMetric:
		if metric.kind == "" {
			return Reputation{}, fmt.Errorf("metric reputation requires a metric")
		}
		return NewMetricReputation(metric), nil
	default:
		return Reputation{}, fmt.Errorf("unknown reputation %q", name)
	}
}

func (r Reputation) Type() ReputationType { return r.kind }

// Evaluate computes the reputation of a detector on one snapshot view.
func (r Reputation) Evaluate(det Detector, snaps []models.Snapshot) float64 {
	switch r.kind {
	case ReputationConstant:
		return r.value
	case ReputationMetric:
		v := r.metric.EvaluateDetector(det, snaps).Value
		if r.metric.Direction() == Minimize && !r.metric.Absolute() {
			return 1 - v
		}
		return v
	default:
		c := countOutcomes(snaps, ScoreSnapshots(det, snaps))
		good := float64(c.hits + c.trueNegatives())
		bad := float64(c.misses() + c.falseAlarms)
		return (good + 1) / (good + bad + 2)
	}
}
