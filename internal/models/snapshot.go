package models

import "time"

// Snapshot is one timestamped system state: the observation, the service calls
// alive at that moment and the fault injected exactly then, if any.
type Snapshot struct {
	Timestamp   time.Time
	Observation Observation
	Calls       []ServiceCall
	Injection   *InjectedElement
	Stats       map[string]ServiceStat
	// Feature is only set in per-algorithm views built for series detectors.
	Feature *SeriesValue
}

// Key returns the map key used to attach scores to this snapshot.
func (s Snapshot) Key() int64 {
	return TimeKey(s.Timestamp)
}

// TimeKey converts a timestamp into a comparable score-map key.
func TimeKey(ts time.Time) int64 {
	return ts.UnixNano()
}

// InjectedHere reports whether the snapshot is the detection point of a fault.
func (s Snapshot) InjectedHere() bool {
	return s.Injection != nil && s.Injection.HappensAt(s.Timestamp)
}

// ServiceStat returns the historical stats of a service, if known.
func (s Snapshot) ServiceStat(name string) (ServiceStat, bool) {
	st, ok := s.Stats[name]
	return st, ok
}

// SeriesValue returns the projected series value of a view snapshot.
func (s Snapshot) SeriesValue() (float64, bool) {
	if s.Feature == nil || !s.Feature.Valid {
		return 0, false
	}
	return s.Feature.Value, true
}

func (s Snapshot) clone(stats map[string]ServiceStat, injections map[int64]*InjectedElement) Snapshot {
	out := Snapshot{
		Timestamp:   s.Timestamp,
		Observation: s.Observation.clone(),
		Calls:       append([]ServiceCall(nil), s.Calls...),
		Stats:       stats,
	}
	if s.Injection != nil {
		if inj, ok := injections[TimeKey(s.Injection.Timestamp)]; ok {
			out.Injection = inj
		} else {
			copied := *s.Injection
			out.Injection = &copied
		}
	}
	if s.Feature != nil {
		f := *s.Feature
		f.Series.Indicators = append([]Indicator(nil), f.Series.Indicators...)
		out.Feature = &f
	}
	return out
}
