package algorithms

import (
	"math"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

const sigmaKey = "sigma"

// HistoricalChecker compares the series value of a snapshot with the
// historical indicator statistics of the services active at that time.
// The score is the mean deviation across services, in units of sigma std.
type HistoricalChecker struct {
	series models.DataSeries
	sigma  float64
	weight float64
}

func newHistoricalChecker(series *models.DataSeries, conf models.Configuration) (Detector, error) {
	sigma, err := conf.Float(sigmaKey)
	if err != nil {
		return nil, err
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return nil, &models.ConfigurationError{Key: sigmaKey, Reason: "must be positive"}
	}
	weight, err := staticWeight(conf)
	if err != nil {
		return nil, err
	}
	return &HistoricalChecker{series: *series, sigma: sigma, weight: weight}, nil
}

// Evaluate returns 0 when the value or the stats are unavailable.
func (h *HistoricalChecker) Evaluate(snap models.Snapshot) float64 {
	value, ok := snap.SeriesValue()
	if !ok {
		return 0
	}
	total := 0.0
	count := 0
	seen := make(map[string]struct{}, len(snap.Calls))
	for _, call := range snap.Calls {
		if _, dup := seen[call.ServiceName]; dup {
			continue
		}
		seen[call.ServiceName] = struct{}{}
		stat, ok := snap.ServiceStat(call.ServiceName)
		if !ok {
			continue
		}
		expected, ok := h.expected(stat)
		if !ok {
			continue
		}
		total += deviation(value, expected, h.sigma)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// expected combines the per-indicator stats of the series; variances add up
// for composite series.
func (h *HistoricalChecker) expected(stat models.ServiceStat) (models.StatPair, bool) {
	var avg, variance float64
	for _, ind := range h.series.Indicators {
		st, ok := stat.Indicator(ind.Name)
		if !ok {
			return models.StatPair{}, false
		}
		avg += st.All.Avg
		variance += st.All.Std * st.All.Std
	}
	return models.StatPair{Avg: avg, Std: math.Sqrt(variance)}, true
}

func (h *HistoricalChecker) Weight() float64               { return h.weight }
func (h *HistoricalChecker) DataType() models.DataCategory { return h.series.Category }
func (h *HistoricalChecker) Indicator() string             { return h.series.Name }
func (h *HistoricalChecker) ViewSpec() models.ViewSpec {
	series := h.series
	return models.ViewSpec{Series: &series}
}
