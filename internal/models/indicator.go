package models

import (
	"strconv"
	"strings"
	"time"
)

// LayerType identifies the monitored system layer an indicator belongs to.
type LayerType string

const (
	LayerNone        LayerType = "NO_LAYER"
	LayerOS          LayerType = "CENTOS"
	LayerMiddleware  LayerType = "UNIX"
	LayerJVM         LayerType = "JVM"
	LayerApplication LayerType = "APPLICATION"
	// LayerComposition tags series built from indicators of different layers.
	LayerComposition LayerType = "COMPOSITION"
)

// ParseLayer normalises a textual layer name; empty means LayerNone.
func ParseLayer(value string) LayerType {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return LayerNone
	}
	return LayerType(v)
}

// DataCategory enumerates how an indicator value was derived.
type DataCategory string

const (
	DataCategoryPlain DataCategory = "PLAIN"
	DataCategoryDiff  DataCategory = "DIFFERENCE"
)

// ParseDataCategory normalises a textual category, defaulting to PLAIN.
func ParseDataCategory(value string) DataCategory {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(DataCategoryDiff), "DIFF", "DERIVED":
		return DataCategoryDiff
	default:
		return DataCategoryPlain
	}
}

// Indicator is a monitored quantity on a given layer.
type Indicator struct {
	Name  string
	Layer LayerType
}

// IndicatorData holds the string-encoded values of one indicator per category.
type IndicatorData map[DataCategory]string

// Observation is the raw system state sampled at Timestamp.
type Observation struct {
	Timestamp  time.Time
	Indicators []Indicator
	Values     map[string]IndicatorData
}

// NewObservation builds an empty observation at the given time.
func NewObservation(ts time.Time) Observation {
	return Observation{Timestamp: ts, Values: make(map[string]IndicatorData)}
}

// Add records the values of an indicator, keeping insertion order.
func (o *Observation) Add(ind Indicator, data IndicatorData) {
	if o.Values == nil {
		o.Values = make(map[string]IndicatorData)
	}
	if _, ok := o.Values[ind.Name]; !ok {
		o.Indicators = append(o.Indicators, ind)
	}
	o.Values[ind.Name] = data
}

// Value returns the raw value of an indicator for a category.
func (o Observation) Value(name string, category DataCategory) (string, bool) {
	data, ok := o.Values[name]
	if !ok {
		return "", false
	}
	v, ok := data[category]
	return v, ok
}

// Numeric returns the value of an indicator parsed as a float.
func (o Observation) Numeric(name string, category DataCategory) (float64, bool) {
	raw, ok := o.Value(name, category)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (o Observation) clone() Observation {
	out := Observation{
		Timestamp:  o.Timestamp,
		Indicators: append([]Indicator(nil), o.Indicators...),
		Values:     make(map[string]IndicatorData, len(o.Values)),
	}
	for name, data := range o.Values {
		copied := make(IndicatorData, len(data))
		for cat, v := range data {
			copied[cat] = v
		}
		out.Values[name] = copied
	}
	return out
}
