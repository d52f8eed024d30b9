package algorithms

import (
	"math"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

const (
	upperKey = "upper"
	lowerKey = "lower"
)

// ThresholdChecker flags series values above an upper bound and, optionally,
// below a lower bound.
type ThresholdChecker struct {
	series   models.DataSeries
	upper    float64
	lower    float64
	hasLower bool
	weight   float64
}

func newThresholdChecker(series *models.DataSeries, conf models.Configuration) (Detector, error) {
	upper, err := conf.Float(upperKey)
	if err != nil {
		return nil, err
	}
	if upper <= 0 || math.IsNaN(upper) {
		return nil, &models.ConfigurationError{Key: upperKey, Reason: "must be positive"}
	}
	checker := &ThresholdChecker{series: *series, upper: upper}
	if conf.Has(lowerKey) {
		lower, err := conf.Float(lowerKey)
		if err != nil {
			return nil, err
		}
		if lower >= upper {
			return nil, &models.ConfigurationError{Key: lowerKey, Reason: "must be below upper"}
		}
		checker.lower = lower
		checker.hasLower = true
	}
	if checker.weight, err = staticWeight(conf); err != nil {
		return nil, err
	}
	return checker, nil
}

// Evaluate returns value/upper, or at least 1 plus the relative undershoot
// when the value falls below the lower bound.
func (t *ThresholdChecker) Evaluate(snap models.Snapshot) float64 {
	value, ok := snap.SeriesValue()
	if !ok {
		return 0
	}
	score := value / t.upper
	if t.hasLower && value < t.lower {
		under := 1 + (t.lower-value)/math.Max(math.Abs(t.lower), 1)
		score = math.Max(score, under)
	}
	return score
}

func (t *ThresholdChecker) Weight() float64               { return t.weight }
func (t *ThresholdChecker) DataType() models.DataCategory { return t.series.Category }
func (t *ThresholdChecker) Indicator() string             { return t.series.Name }
func (t *ThresholdChecker) ViewSpec() models.ViewSpec {
	series := t.series
	return models.ViewSpec{Series: &series}
}
