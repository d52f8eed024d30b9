package models

import (
	"sort"
	"time"
)

// Timings maps a performance type to per-layer monitor timing samples (ms).
type Timings map[string]map[LayerType][]int

// ExperimentData is the ordered snapshot set of one experiment run.
// It owns its snapshots; hand a Clone to any concurrent consumer.
type ExperimentData struct {
	Name       string
	Calls      []ServiceCall
	Injections []InjectedElement
	Stats      map[string]ServiceStat
	Timings    Timings

	snapshots []Snapshot
	cursor    int
}

// NewExperimentData builds the snapshots of an experiment from its observations.
// Observations must be strictly ascending in time.
func NewExperimentData(name string, observations []Observation, calls []ServiceCall, injections []InjectedElement, stats map[string]ServiceStat, timings Timings) (*ExperimentData, error) {
	for i := 1; i < len(observations); i++ {
		if !observations[i].Timestamp.After(observations[i-1].Timestamp) {
			return nil, &DataIntegrityError{
				Experiment: name,
				Reason:     "observations are not strictly ascending at " + observations[i].Timestamp.Format(time.RFC3339Nano),
			}
		}
	}

	injList := append([]InjectedElement(nil), injections...)
	sort.SliceStable(injList, func(i, j int) bool {
		return injList[i].Timestamp.Before(injList[j].Timestamp)
	})
	linkInjections(injList)

	exp := &ExperimentData{
		Name:       name,
		Calls:      append([]ServiceCall(nil), calls...),
		Injections: injList,
		Stats:      stats,
		Timings:    timings,
	}
	exp.snapshots = exp.buildSnapshots(observations)
	return exp, nil
}

// linkInjections closes each fault window at the next distinct fault.
func linkInjections(injList []InjectedElement) {
	for i := range injList {
		for j := i + 1; j < len(injList); j++ {
			if injList[j].Timestamp.After(injList[i].Timestamp) {
				if injList[i].Until.IsZero() || injList[j].Timestamp.Before(injList[i].Until) {
					injList[i].Until = injList[j].Timestamp
				}
				break
			}
		}
	}
}

func (e *ExperimentData) buildSnapshots(observations []Observation) []Snapshot {
	snaps := make([]Snapshot, 0, len(observations))
	injIndex := 0
	for _, obs := range observations {
		current := make([]ServiceCall, 0)
		for _, call := range e.Calls {
			if call.IsAliveAt(obs.Timestamp) {
				current = append(current, call)
			}
		}
		for injIndex < len(e.Injections) && e.Injections[injIndex].Timestamp.Before(obs.Timestamp) {
			injIndex++
		}
		var inj *InjectedElement
		if injIndex < len(e.Injections) && e.Injections[injIndex].Timestamp.Equal(obs.Timestamp) {
			inj = &e.Injections[injIndex]
		}
		snaps = append(snaps, Snapshot{
			Timestamp:   obs.Timestamp,
			Observation: obs,
			Calls:       current,
			Injection:   inj,
			Stats:       e.Stats,
		})
	}
	return snaps
}

// Clone returns a deep, non-aliased copy with its cursor at the start.
func (e *ExperimentData) Clone() *ExperimentData {
	if e == nil {
		return nil
	}
	out := &ExperimentData{
		Name:       e.Name,
		Calls:      append([]ServiceCall(nil), e.Calls...),
		Injections: append([]InjectedElement(nil), e.Injections...),
		Stats:      cloneStats(e.Stats),
		Timings:    cloneTimings(e.Timings),
	}
	byTime := make(map[int64]*InjectedElement, len(out.Injections))
	for i := range out.Injections {
		key := TimeKey(out.Injections[i].Timestamp)
		if _, ok := byTime[key]; !ok {
			byTime[key] = &out.Injections[i]
		}
	}
	out.snapshots = make([]Snapshot, 0, len(e.snapshots))
	for _, snap := range e.snapshots {
		out.snapshots = append(out.snapshots, snap.clone(out.Stats, byTime))
	}
	return out
}

// CloneAll deep-copies a list of experiments.
func CloneAll(experiments []*ExperimentData) []*ExperimentData {
	out := make([]*ExperimentData, 0, len(experiments))
	for _, exp := range experiments {
		if exp != nil {
			out = append(out, exp.Clone())
		}
	}
	return out
}

func cloneTimings(in Timings) Timings {
	if in == nil {
		return nil
	}
	out := make(Timings, len(in))
	for perf, layers := range in {
		copied := make(map[LayerType][]int, len(layers))
		for layer, samples := range layers {
			copied[layer] = append([]int(nil), samples...)
		}
		out[perf] = copied
	}
	return out
}

// Reset rewinds the snapshot cursor.
func (e *ExperimentData) Reset() {
	e.cursor = 0
}

// HasNext reports whether the cursor has snapshots left.
func (e *ExperimentData) HasNext() bool {
	return e.cursor < len(e.snapshots)
}

// Next returns the snapshot under the cursor and advances it.
func (e *ExperimentData) Next() (Snapshot, bool) {
	if !e.HasNext() {
		return Snapshot{}, false
	}
	snap := e.snapshots[e.cursor]
	e.cursor++
	return snap, true
}

// Len returns the number of snapshots.
func (e *ExperimentData) Len() int {
	return len(e.snapshots)
}

// Snapshots returns the snapshot sequence. Callers must not modify it.
func (e *ExperimentData) Snapshots() []Snapshot {
	return e.snapshots
}

// FirstTimestamp returns the time of the first snapshot, zero when empty.
func (e *ExperimentData) FirstTimestamp() time.Time {
	if len(e.snapshots) == 0 {
		return time.Time{}
	}
	return e.snapshots[0].Timestamp
}

// IndicatorNames lists the indicators of the first observation.
func (e *ExperimentData) IndicatorNames() []string {
	if len(e.snapshots) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.snapshots[0].Observation.Indicators))
	for _, ind := range e.snapshots[0].Observation.Indicators {
		names = append(names, ind.Name)
	}
	return names
}

// NumericIndicators lists the indicators whose first plain value is numeric.
func (e *ExperimentData) NumericIndicators() []Indicator {
	if len(e.snapshots) == 0 {
		return nil
	}
	first := e.snapshots[0].Observation
	inds := make([]Indicator, 0, len(first.Indicators))
	for _, ind := range first.Indicators {
		if _, ok := first.Numeric(ind.Name, DataCategoryPlain); ok {
			inds = append(inds, ind)
		}
	}
	return inds
}

// LayerIndicators counts the indicators observed on each layer.
func (e *ExperimentData) LayerIndicators() map[LayerType]int {
	counts := make(map[LayerType]int)
	if len(e.snapshots) == 0 {
		return counts
	}
	for _, ind := range e.snapshots[0].Observation.Indicators {
		counts[ind.Layer]++
	}
	return counts
}

// BuildView derives the snapshot sequence a detector consumes. Series views
// attach the projected value of every snapshot; the underlying data is not modified.
func (e *ExperimentData) BuildView(spec ViewSpec) []Snapshot {
	view := make([]Snapshot, len(e.snapshots))
	copy(view, e.snapshots)
	if spec.Series == nil {
		return view
	}
	series := *spec.Series
	for i := range view {
		v, ok := series.Value(view[i].Observation)
		view[i].Feature = &SeriesValue{Series: series, Value: v, Valid: ok}
	}
	return view
}
