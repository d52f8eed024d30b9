package utils

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2016, 3, 10, 12, 0, 1, 0, time.UTC)
	for _, value := range []string{"2016-03-10T12:00:01Z", "2016-03-10 12:00:01", "2016-03-10T12:00:01"} {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", value, want, got)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for malformed timestamp")
	}
	if _, err := ParseTimestamp(" "); err == nil {
		t.Fatalf("expected error for empty timestamp")
	}
}

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := Mean(values)
	if mean != 5 {
		t.Fatalf("expected mean 5, got %v", mean)
	}
	if std := StdDev(values, mean); std != 2 {
		t.Fatalf("expected population std 2, got %v", std)
	}
	if !math.IsNaN(Mean(nil)) {
		t.Fatalf("expected NaN mean for empty input")
	}
	if SafeRatio(1, 0) != 0 {
		t.Fatalf("expected zero ratio on empty denominator")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewAppError("dataset.load", "run 7", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	if OpOf(err) != "dataset.load" {
		t.Fatalf("unexpected op %q", OpOf(err))
	}
	if err.Error() != "dataset.load: run 7: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
