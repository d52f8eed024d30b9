// Package dataset assembles experiment data from raw run records.
package dataset

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/config"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/repo"
	"github.com/miradorstack/mirador-trainer/internal/utils"
)

// ErrNoExperiments is returned when no run could be turned into an experiment.
var ErrNoExperiments = errors.New("no usable experiments")

// Loader reads runs from a source and builds the training set.
type Loader struct {
	source repo.ExperimentSource
	grace  time.Duration
	logger *slog.Logger
}

// ComplianceWindow resolves the configured compliance mode into the window
// given to faults whose record carries no duration.
func ComplianceWindow(training config.TrainingConfig) time.Duration {
	if training.ComplianceMode == config.ComplianceNextFaultMode {
		return models.UntilNextFault
	}
	return training.ComplianceGrace
}

// NewLoader constructs a Loader. grace is the compliance window given to
// faults whose record carries no duration; see ComplianceWindow.
func NewLoader(source repo.ExperimentSource, grace time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, grace: grace, logger: logger}
}

// Load builds one experiment per run id, or per stored run when ids is empty.
// Runs with inconsistent data are logged and left out; source failures abort.
func (l *Loader) Load(ctx context.Context, ids []string) ([]*models.ExperimentData, error) {
	if l.source == nil {
		return nil, utils.NewAppError("dataset.Load", "experiment source not configured", nil)
	}
	if len(ids) == 0 {
		runs, err := l.source.ListRuns(ctx)
		if err != nil {
			return nil, utils.NewAppError("dataset.Load", "list runs", err)
		}
		for _, run := range runs {
			ids = append(ids, run.ID)
		}
	}

	experiments := make([]*models.ExperimentData, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := l.source.LoadRun(ctx, id)
		if err != nil {
			return nil, utils.NewAppError("dataset.Load", "load run "+id, err)
		}
		exp, err := Build(rec, l.grace)
		if err != nil {
			if models.IsDataIntegrityError(err) {
				l.logger.Warn("excluding experiment", slog.String("run", id), slog.Any("error", err))
				continue
			}
			return nil, utils.NewAppError("dataset.Load", "build run "+id, err)
		}
		experiments = append(experiments, exp)
	}

	if len(experiments) == 0 {
		return nil, utils.NewAppError("dataset.Load", "no run produced an experiment", ErrNoExperiments)
	}
	l.logger.Info("training set loaded", slog.Int("requested", len(ids)), slog.Int("experiments", len(experiments)))
	return experiments, nil
}

// Build converts the raw records of one run into ExperimentData. Unparsable
// timestamps and inverted call intervals yield a DataIntegrityError.
func Build(rec repo.RunRecord, grace time.Duration) (*models.ExperimentData, error) {
	name := rec.Name
	if name == "" {
		name = rec.ID
	}
	invalid := func(reason string, err error) error {
		return &models.DataIntegrityError{Experiment: name, Reason: reason, Err: err}
	}

	observations, err := buildObservations(rec.Observations)
	if err != nil {
		return nil, invalid("observation timestamp", err)
	}
	if len(observations) == 0 {
		return nil, invalid("no observations", nil)
	}

	calls := make([]models.ServiceCall, 0, len(rec.Calls))
	for _, c := range rec.Calls {
		start, err := utils.ParseTimestamp(c.Start)
		if err != nil {
			return nil, invalid("call start", err)
		}
		var end time.Time
		if strings.TrimSpace(c.End) != "" {
			if end, err = utils.ParseTimestamp(c.End); err != nil {
				return nil, invalid("call end", err)
			}
			if end.Before(start) {
				return nil, invalid("call "+c.Service+" ends before it starts", nil)
			}
		}
		calls = append(calls, models.ServiceCall{ServiceName: c.Service, Start: start, End: end, ResponseCode: c.ResponseCode})
	}

	injections := make([]models.InjectedElement, 0, len(rec.Injections))
	for _, inj := range rec.Injections {
		ts, err := utils.ParseTimestamp(inj.Timestamp)
		if err != nil {
			return nil, invalid("injection timestamp", err)
		}
		window := grace
		if inj.DurationSeconds > 0 {
			window = time.Duration(inj.DurationSeconds * float64(time.Second))
		}
		injections = append(injections, models.InjectedElement{Timestamp: ts, Description: inj.Description, Window: window})
	}

	return models.NewExperimentData(name, observations, calls, injections, buildStats(rec.Stats), buildTimings(rec.Timings))
}

func buildObservations(records []repo.ObservationRecord) ([]models.Observation, error) {
	type sample struct {
		ts         time.Time
		indicators []models.Indicator
		values     map[string]models.IndicatorData
	}
	samples := make(map[int64]*sample)
	for _, r := range records {
		ts, err := utils.ParseTimestamp(r.Timestamp)
		if err != nil {
			return nil, err
		}
		key := models.TimeKey(ts)
		s, ok := samples[key]
		if !ok {
			s = &sample{ts: ts, values: make(map[string]models.IndicatorData)}
			samples[key] = s
		}
		data, ok := s.values[r.Indicator]
		if !ok {
			data = make(models.IndicatorData)
			s.values[r.Indicator] = data
			s.indicators = append(s.indicators, models.Indicator{Name: r.Indicator, Layer: models.ParseLayer(r.Layer)})
		}
		data[models.ParseDataCategory(r.Category)] = r.Value
	}

	out := make([]models.Observation, 0, len(samples))
	for _, s := range samples {
		obs := models.NewObservation(s.ts)
		for _, ind := range s.indicators {
			obs.Add(ind, s.values[ind.Name])
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func buildStats(records []repo.StatRecord) map[string]models.ServiceStat {
	stats := make(map[string]models.ServiceStat)
	for _, r := range records {
		st, ok := stats[r.Service]
		if !ok {
			st = models.ServiceStat{Name: r.Service, Indicators: make(map[string]models.IndicatorStat)}
		}
		pair := models.StatPair{Avg: r.Avg, Std: r.Std}
		if r.Indicator == "" {
			st.Time = pair
		} else {
			ind := st.Indicators[r.Indicator]
			if strings.EqualFold(r.Scope, "first") {
				ind.First = pair
			} else {
				ind.All = pair
			}
			st.Indicators[r.Indicator] = ind
		}
		stats[r.Service] = st
	}
	return stats
}

func buildTimings(records []repo.TimingRecord) models.Timings {
	timings := make(models.Timings)
	for _, r := range records {
		byLayer, ok := timings[r.Kind]
		if !ok {
			byLayer = make(map[models.LayerType][]int)
			timings[r.Kind] = byLayer
		}
		layer := models.ParseLayer(r.Layer)
		byLayer[layer] = append(byLayer[layer], r.Value)
	}
	return timings
}
