package utils

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are tried in order by ParseTimestamp. Experiment stores
// record times either as RFC3339 or as SQL datetimes in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseTimestamp parses RFC3339 or SQL datetime values. Empty input is an error.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse time %q: %w", value, lastErr)
}

// SecondsBetween returns the absolute number of seconds separating two timestamps.
func SecondsBetween(a, b time.Time) float64 {
	if b.Before(a) {
		a, b = b, a
	}
	return b.Sub(a).Seconds()
}
