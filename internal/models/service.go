package models

import "time"

// ServiceCall is a single invocation of a monitored service.
type ServiceCall struct {
	ServiceName  string
	Start        time.Time
	End          time.Time
	ResponseCode string
}

// IsAliveAt reports whether the call is running at, or ending at, ts.
// A zero End means the call never completed.
func (c ServiceCall) IsAliveAt(ts time.Time) bool {
	if ts.Before(c.Start) {
		return false
	}
	return c.End.IsZero() || !ts.After(c.End)
}

// EndsAt reports whether the call completes exactly at ts.
func (c ServiceCall) EndsAt(ts time.Time) bool {
	return !c.End.IsZero() && c.End.Equal(ts)
}

// Succeeded reports whether the call returned a 200 response.
func (c ServiceCall) Succeeded() bool {
	return c.ResponseCode == "200"
}

// StatPair is a mean / standard deviation pair.
type StatPair struct {
	Avg float64
	Std float64
}

// IndicatorStat keeps historical statistics of an indicator observed during
// calls to a service: at the first observation and across all of them.
type IndicatorStat struct {
	First StatPair
	All   StatPair
}

// ServiceStat holds the expected behaviour of a service.
type ServiceStat struct {
	Name       string
	Time       StatPair
	Indicators map[string]IndicatorStat
}

// Indicator returns the stats recorded for an indicator, if any.
func (s ServiceStat) Indicator(name string) (IndicatorStat, bool) {
	st, ok := s.Indicators[name]
	return st, ok
}

func (s ServiceStat) clone() ServiceStat {
	out := ServiceStat{Name: s.Name, Time: s.Time}
	if s.Indicators != nil {
		out.Indicators = make(map[string]IndicatorStat, len(s.Indicators))
		for k, v := range s.Indicators {
			out.Indicators[k] = v
		}
	}
	return out
}

func cloneStats(in map[string]ServiceStat) map[string]ServiceStat {
	if in == nil {
		return nil
	}
	out := make(map[string]ServiceStat, len(in))
	for k, v := range in {
		out[k] = v.clone()
	}
	return out
}
