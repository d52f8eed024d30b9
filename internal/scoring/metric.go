package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

// MetricType tags a metric family.
type MetricType string

const (
	MetricTruePositives  MetricType = "TP"
	MetricFalseNegatives MetricType = "FN"
	MetricFalsePositives MetricType = "FP"
	MetricPrecision      MetricType = "PRECISION"
	MetricRecall         MetricType = "RECALL"
	MetricFScore         MetricType = "FSCORE"
)

// Direction states which way a metric improves.
type Direction int

const (
	Maximize Direction = 1
	Minimize Direction = -1
)

var metricFamilies = map[MetricType]struct {
	name      string
	direction Direction
}{
	MetricTruePositives:  {"True Positives", Maximize},
	MetricFalseNegatives: {"False Negatives", Minimize},
	MetricFalsePositives: {"False Positives", Minimize},
	MetricPrecision:      {"Precision", Maximize},
	MetricRecall:         {"Recall", Maximize},
	MetricFScore:         {"F-Score", Maximize},
}

// Metric turns anomaly scores and the fault timeline into one quality value.
// Absolute mode reports raw counts for the counting families (TP, FN, FP);
// ratio families ignore it.
type Metric struct {
	kind     MetricType
	absolute bool
}

// NewMetric builds a metric of the given family.
func NewMetric(kind MetricType, absolute bool) (Metric, error) {
	if _, ok := metricFamilies[kind]; !ok {
		return Metric{}, fmt.Errorf("unknown metric %q", kind)
	}
	return Metric{kind: kind, absolute: absolute}, nil
}

// ParseMetric resolves a case-insensitive metric tag.
func ParseMetric(value string, absolute bool) (Metric, error) {
	return NewMetric(MetricType(strings.ToUpper(strings.TrimSpace(value))), absolute)
}

func (m Metric) Type() MetricType     { return m.kind }
func (m Metric) Absolute() bool       { return m.absolute }
func (m Metric) Name() string         { return metricFamilies[m.kind].name }
func (m Metric) Direction() Direction { return metricFamilies[m.kind].direction }

// Evaluate computes the metric over an ordered snapshot sequence.
func (m Metric) Evaluate(snaps []models.Snapshot, scores Scores) float64 {
	if len(snaps) == 0 {
		return 0
	}
	c := countOutcomes(snaps, scores)
	switch m.kind {
	case MetricTruePositives:
		if m.absolute {
			return float64(c.hits)
		}
		return float64(c.hits) / float64(c.detectable())
	case MetricFalseNegatives:
		if m.absolute {
			return float64(c.misses())
		}
		return float64(c.misses()) / float64(c.total)
	case MetricFalsePositives:
		if m.absolute {
			return float64(c.falseAlarms)
		}
		return float64(c.falseAlarms) / float64(c.detectable())
	case MetricPrecision:
		return precision(c)
	case MetricRecall:
		return recall(c)
	case MetricFScore:
		p, r := precision(c), recall(c)
		if p+r == 0 {
			return 0
		}
		return 2 * p * r / (p + r)
	default:
		return math.NaN()
	}
}

func precision(c confusion) float64 {
	flagged := c.hits + c.falseAlarms
	if flagged == 0 {
		return 0
	}
	return float64(c.hits) / float64(flagged)
}

func recall(c confusion) float64 {
	if c.faults == 0 {
		return 0
	}
	return float64(c.hits) / float64(c.faults)
}

// EvaluateExperiment walks the experiment with its cursor, which is reset
// before and after the walk.
func (m Metric) EvaluateExperiment(exp *models.ExperimentData, scores Scores) float64 {
	exp.Reset()
	defer exp.Reset()
	snaps := make([]models.Snapshot, 0, exp.Len())
	for exp.HasNext() {
		snap, _ := exp.Next()
		snaps = append(snaps, snap)
	}
	return m.Evaluate(snaps, scores)
}

// EvaluateVoting scores raw ensemble votes: each vote is divided by the
// anomaly threshold before the canonical evaluation.
func (m Metric) EvaluateVoting(exp *models.ExperimentData, votes Scores, threshold float64) float64 {
	normalised := make(Scores, len(votes))
	for key, vote := range votes {
		normalised[key] = vote / threshold
	}
	return m.EvaluateExperiment(exp, normalised)
}

// Evaluation is the outcome of running a detector over one experiment.
type Evaluation struct {
	Value       float64
	AnomalyRate float64
}

// EvaluateDetector scores a detector on a snapshot view and evaluates the metric.
func (m Metric) EvaluateDetector(det Detector, snaps []models.Snapshot) Evaluation {
	scores := ScoreSnapshots(det, snaps)
	return Evaluation{
		Value:       m.Evaluate(snaps, scores),
		AnomalyRate: AnomalyRate(snaps, scores),
	}
}

// Compare returns +1 when current is strictly better than best, 0 when equal
// and -1 when worse. An undefined (NaN) best always loses and an undefined
// current never wins.
func (m Metric) Compare(current, best float64) int {
	switch {
	case math.IsNaN(current) && math.IsNaN(best):
		return 0
	case math.IsNaN(current):
		return -1
	case math.IsNaN(best):
		return 1
	case current == best:
		return 0
	}
	better := current > best
	if m.Direction() == Minimize {
		better = current < best
	}
	if better {
		return 1
	}
	return -1
}

func (m Metric) String() string {
	if m.absolute {
		return string(m.kind) + "(absolute)"
	}
	return string(m.kind)
}
