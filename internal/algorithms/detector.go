// Package algorithms defines the detector contract used during training and
// the built-in detector families.
package algorithms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

// Type tags a detector family.
type Type string

const (
	// TypeRemoteCall checks service call durations and outcomes against history.
	TypeRemoteCall Type = "RCC"
	// TypeHistorical compares a series value with the historical indicator stats of active services.
	TypeHistorical Type = "HIST"
	// TypeThreshold applies static bounds to a series value.
	TypeThreshold Type = "THRESHOLD"
)

// Detector scores snapshots. Implementations are immutable after construction
// and return values >= 1.0 for anomalous snapshots.
type Detector interface {
	Evaluate(snap models.Snapshot) float64
	// Weight is the static confidence of the detector, independent of training.
	Weight() float64
	// DataType is the data category consumed, empty for series-free detectors.
	DataType() models.DataCategory
	// Indicator is the consumed series name, empty for series-free detectors.
	Indicator() string
	// ViewSpec describes the snapshot view the detector expects.
	ViewSpec() models.ViewSpec
}

// Builder constructs a detector for a series from a configuration.
type Builder func(series *models.DataSeries, conf models.Configuration) (Detector, error)

type family struct {
	build       Builder
	needsSeries bool
}

var families = map[Type]family{
	TypeRemoteCall: {build: newRemoteCallChecker, needsSeries: false},
	TypeHistorical: {build: newHistoricalChecker, needsSeries: true},
	TypeThreshold:  {build: newThresholdChecker, needsSeries: true},
}

// Build instantiates a detector of the given family.
func Build(t Type, series *models.DataSeries, conf models.Configuration) (Detector, error) {
	fam, ok := families[t]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm type %q", t)
	}
	if fam.needsSeries && series == nil {
		return nil, fmt.Errorf("algorithm %s requires a data series", t)
	}
	return fam.build(series, conf)
}

// NeedsSeries reports whether detectors of this family are trained per data series.
func NeedsSeries(t Type) bool {
	return families[t].needsSeries
}

// ParseType resolves a case-insensitive family tag.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := families[t]; !ok {
		return "", fmt.Errorf("unknown algorithm type %q", value)
	}
	return t, nil
}

// Types lists the registered families in lexical order.
func Types() []Type {
	out := make([]Type, 0, len(families))
	for t := range families {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// staticWeight reads the optional detector_weight parameter, defaulting to 1.
func staticWeight(conf models.Configuration) (float64, error) {
	return conf.FloatOr(models.ConfigDetectorWeightKey, 1.0)
}

// deviation returns |value-avg| expressed in units of k standard deviations.
// A zero spread maps any difference to exactly one unit.
func deviation(value float64, stat models.StatPair, k float64) float64 {
	diff := value - stat.Avg
	if diff < 0 {
		diff = -diff
	}
	spread := k * stat.Std
	if spread <= 0 {
		if diff > 0 {
			return 1
		}
		return 0
	}
	return diff / spread
}

// overrun is like deviation but only penalises values above the mean.
func overrun(value float64, stat models.StatPair) float64 {
	if value <= stat.Avg {
		return 0
	}
	return deviation(value, stat, 1)
}
