package algorithms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

var base = time.Unix(1_700_000_000, 0).UTC()

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func cpuSeries() models.DataSeries {
	return models.NewIndicatorSeries(models.Indicator{Name: "cpu", Layer: models.LayerOS}, models.DataCategoryPlain)
}

func seriesSnapshot(ts time.Time, value float64, calls []models.ServiceCall, stats map[string]models.ServiceStat) models.Snapshot {
	series := cpuSeries()
	return models.Snapshot{
		Timestamp: ts,
		Calls:     calls,
		Stats:     stats,
		Feature:   &models.SeriesValue{Series: series, Value: value, Valid: true},
	}
}

func TestBuildRejectsMissingOrMalformedParameters(t *testing.T) {
	series := cpuSeries()

	_, err := Build(TypeRemoteCall, nil, models.NewConfiguration(nil))
	assert.True(t, models.IsConfigurationError(err), "missing rcc_weight: %v", err)

	_, err = Build(TypeHistorical, &series, models.NewConfiguration(map[string]string{"sigma": "abc"}))
	assert.True(t, models.IsConfigurationError(err), "malformed sigma: %v", err)

	_, err = Build(TypeThreshold, &series, models.NewConfiguration(map[string]string{"upper": "10", "lower": "20"}))
	assert.True(t, models.IsConfigurationError(err), "lower above upper: %v", err)

	_, err = Build(TypeHistorical, nil, models.NewConfiguration(map[string]string{"sigma": "2"}))
	assert.Error(t, err, "series detectors need a series")

	_, err = Build(Type("NOPE"), nil, models.NewConfiguration(nil))
	assert.Error(t, err)
}

func TestRemoteCallChecker(t *testing.T) {
	det, err := Build(TypeRemoteCall, nil, models.NewConfiguration(map[string]string{"rcc_weight": "3"}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, det.Weight())
	assert.Nil(t, det.ViewSpec().Series)

	stats := map[string]models.ServiceStat{"login": {Name: "login", Time: models.StatPair{Avg: 2, Std: 1}}}

	failed := models.Snapshot{Timestamp: at(5), Stats: stats, Calls: []models.ServiceCall{
		{ServiceName: "login", Start: at(3), End: at(5), ResponseCode: "500"},
	}}
	assert.Equal(t, 3.0, det.Evaluate(failed))

	slow := models.Snapshot{Timestamp: at(10), Stats: stats, Calls: []models.ServiceCall{
		{ServiceName: "login", Start: at(5), End: at(10), ResponseCode: "200"},
	}}
	assert.InDelta(t, 3.0, det.Evaluate(slow), 1e-9)

	open := models.Snapshot{Timestamp: at(4), Stats: stats, Calls: []models.ServiceCall{
		{ServiceName: "login", Start: at(3), ResponseCode: ""},
		{ServiceName: "login", Start: at(0), ResponseCode: ""},
	}}
	// elapsed 1s is under the mean, elapsed 4s overruns it by two std.
	assert.InDelta(t, 1.0, det.Evaluate(open), 1e-9)

	assert.Equal(t, 0.0, det.Evaluate(models.Snapshot{Timestamp: at(1)}))
}

func TestHistoricalChecker(t *testing.T) {
	series := cpuSeries()
	det, err := Build(TypeHistorical, &series, models.NewConfiguration(map[string]string{"sigma": "2", "detector_weight": "0.5", "weight": "0.9"}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, det.Weight())
	assert.Equal(t, "cpu", det.Indicator())
	assert.Equal(t, models.DataCategoryPlain, det.DataType())
	require.NotNil(t, det.ViewSpec().Series)

	stats := map[string]models.ServiceStat{
		"login": {Name: "login", Indicators: map[string]models.IndicatorStat{"cpu": {All: models.StatPair{Avg: 10, Std: 5}}}},
	}
	calls := []models.ServiceCall{{ServiceName: "login", Start: at(0)}, {ServiceName: "search", Start: at(0)}}

	assert.InDelta(t, 2.0, det.Evaluate(seriesSnapshot(at(1), 30, calls, stats)), 1e-9)
	assert.InDelta(t, 0.5, det.Evaluate(seriesSnapshot(at(1), 5, calls, stats)), 1e-9)
	assert.Equal(t, 0.0, det.Evaluate(seriesSnapshot(at(1), 30, nil, stats)))
	assert.Equal(t, 0.0, det.Evaluate(models.Snapshot{Timestamp: at(1), Calls: calls, Stats: stats}))
}

func TestThresholdChecker(t *testing.T) {
	series := cpuSeries()
	det, err := Build(TypeThreshold, &series, models.NewConfiguration(map[string]string{"upper": "80", "lower": "10"}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, det.Weight())

	assert.InDelta(t, 0.5, det.Evaluate(seriesSnapshot(at(0), 40, nil, nil)), 1e-9)
	assert.InDelta(t, 1.25, det.Evaluate(seriesSnapshot(at(0), 100, nil, nil)), 1e-9)
	assert.GreaterOrEqual(t, det.Evaluate(seriesSnapshot(at(0), 5, nil, nil)), 1.0)
}

func TestParseTypeAndTypes(t *testing.T) {
	typ, err := ParseType(" hist ")
	require.NoError(t, err)
	assert.Equal(t, TypeHistorical, typ)
	assert.Equal(t, []Type{TypeHistorical, TypeRemoteCall, TypeThreshold}, Types())
	assert.True(t, NeedsSeries(TypeThreshold))
	assert.False(t, NeedsSeries(TypeRemoteCall))
}
