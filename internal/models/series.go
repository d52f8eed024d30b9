package models

import (
	"fmt"
	"sort"
	"strings"
)

// DataSeries is the indicator / layer / category combination a detector is trained against.
// Series with more than one indicator are evaluated as the sum of their values.
type DataSeries struct {
	Name       string
	Indicators []Indicator
	Layer      LayerType
	Category   DataCategory
}

// NewIndicatorSeries builds a single-indicator series.
func NewIndicatorSeries(ind Indicator, category DataCategory) DataSeries {
	return DataSeries{
		Name:       ind.Name,
		Indicators: []Indicator{ind},
		Layer:      ind.Layer,
		Category:   category,
	}
}

// NewSumSeries builds a composite series summing the given indicators.
func NewSumSeries(category DataCategory, inds ...Indicator) DataSeries {
	names := make([]string, 0, len(inds))
	layer := LayerNone
	for i, ind := range inds {
		names = append(names, ind.Name)
		if i == 0 {
			layer = ind.Layer
		} else if ind.Layer != layer {
			layer = LayerComposition
		}
	}
	return DataSeries{
		Name:       strings.Join(names, "+"),
		Indicators: append([]Indicator(nil), inds...),
		Layer:      layer,
		Category:   category,
	}
}

// Value evaluates the series on an observation. ok is false when any
// indicator is missing or not numeric.
func (s DataSeries) Value(obs Observation) (float64, bool) {
	if len(s.Indicators) == 0 {
		return 0, false
	}
	total := 0.0
	for _, ind := range s.Indicators {
		v, ok := obs.Numeric(ind.Name, s.Category)
		if !ok {
			return 0, false
		}
		total += v
	}
	return total, true
}

// String renders the series as name(category)@layer.
func (s DataSeries) String() string {
	return fmt.Sprintf("%s(%s)@%s", s.Name, s.Category, s.Layer)
}

// SeriesKey identifies a trained result for routing to the ensemble.
type SeriesKey struct {
	Series   string
	Layer    LayerType
	Category DataCategory
}

// Key returns the routing key of the series.
func (s DataSeries) Key() SeriesKey {
	return SeriesKey{Series: s.Name, Layer: s.Layer, Category: s.Category}
}

// SeriesValue is the projection of a snapshot on a data series.
type SeriesValue struct {
	Series DataSeries
	Value  float64
	Valid  bool
}

// ViewSpec tells an experiment how to project its snapshots for a detector.
// A nil Series yields plain snapshots.
type ViewSpec struct {
	Series *DataSeries
}

// EnumerateSeries returns one single-indicator series per numeric indicator of
// the experiment whose layer is selected, for every requested category.
// An empty layers list selects every layer.
func EnumerateSeries(exp *ExperimentData, layers []LayerType, categories []DataCategory) []DataSeries {
	if exp == nil {
		return nil
	}
	if len(categories) == 0 {
		categories = []DataCategory{DataCategoryPlain}
	}
	wanted := make(map[LayerType]struct{}, len(layers))
	for _, l := range layers {
		wanted[l] = struct{}{}
	}

	series := make([]DataSeries, 0)
	for _, ind := range exp.NumericIndicators() {
		if len(wanted) > 0 {
			if _, ok := wanted[ind.Layer]; !ok {
				continue
			}
		}
		for _, cat := range categories {
			series = append(series, NewIndicatorSeries(ind, cat))
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		if series[i].Layer != series[j].Layer {
			return series[i].Layer < series[j].Layer
		}
		return series[i].Name < series[j].Name
	})
	return series
}
