package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/metrics"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/scoring"
)

// ResultKey identifies one trainer slot in a report.
type ResultKey struct {
	Algorithm algorithms.Type
	Series    string
	Layer     models.LayerType
	Category  models.DataCategory
}

func (k ResultKey) String() string {
	if k.Series == "" {
		return string(k.Algorithm)
	}
	return fmt.Sprintf("%s/%s@%s/%s", k.Algorithm, k.Series, k.Layer, k.Category)
}

// Job describes one trainer to run.
type Job struct {
	Algorithm  algorithms.Type
	Series     *models.DataSeries
	Candidates []models.Configuration
	// Fixed scores Candidates[0] without searching.
	Fixed bool
}

// Key returns the report slot of the job.
func (j Job) Key() ResultKey {
	key := ResultKey{Algorithm: j.Algorithm, Layer: models.LayerNone}
	if j.Series != nil {
		key.Series = j.Series.Name
		key.Layer = j.Series.Layer
		key.Category = j.Series.Category
	}
	return key
}

// Outcome is the independent result of one job: a Result or an error.
type Outcome struct {
	Key      ResultKey
	Result   Result
	Err      error
	Duration time.Duration
}

// Report collects every job outcome of one training run, in job order.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Results returns the successful results in job order.
func (r Report) Results() []Result {
	out := make([]Result, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Result)
		}
	}
	return out
}

// Failures returns the failed outcomes in job order.
func (r Report) Failures() []Outcome {
	out := make([]Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// ByKey indexes successful results by slot.
func (r Report) ByKey() map[ResultKey]Result {
	out := make(map[ResultKey]Result, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out[o.Key] = o.Result
		}
	}
	return out
}

// PlanJobs creates one job per (algorithm type × data series). Series are
// enumerated from the reference experiment restricted to layers and
// categories; series-free algorithms get a single job.
func PlanJobs(reference *models.ExperimentData, candidates algorithms.Candidates, layers []models.LayerType, categories []models.DataCategory) []Job {
	types := make([]algorithms.Type, 0, len(candidates))
	for t := range candidates {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var series []models.DataSeries
	if reference != nil {
		series = models.EnumerateSeries(reference, layers, categories)
	}

	jobs := make([]Job, 0)
	for _, t := range types {
		confs := candidates[t]
		if len(confs) == 0 {
			continue
		}
		if !algorithms.NeedsSeries(t) {
			jobs = append(jobs, Job{Algorithm: t, Candidates: confs})
			continue
		}
		for i := range series {
			s := series[i]
			jobs = append(jobs, Job{Algorithm: t, Series: &s, Candidates: confs})
		}
	}
	return jobs
}

// Orchestrator runs trainers on a bounded worker pool.
type Orchestrator struct {
	logger     *slog.Logger
	workers    int
	metric     scoring.Metric
	reputation scoring.Reputation
	factory    Factory
	// newTrainer is swapped in tests to observe trainer construction.
	newTrainer func(job Job, experiments []*models.ExperimentData, opts ...Option) *Trainer
}

// NewOrchestrator constructs an orchestrator. workers <= 0 uses GOMAXPROCS.
func NewOrchestrator(logger *slog.Logger, workers int, metric scoring.Metric, reputation scoring.Reputation, factory Factory) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	o := &Orchestrator{
		logger:     logger,
		workers:    workers,
		metric:     metric,
		reputation: reputation,
		factory:    factory,
	}
	o.newTrainer = o.buildTrainer
	return o
}

func (o *Orchestrator) buildTrainer(job Job, experiments []*models.ExperimentData, opts ...Option) *Trainer {
	if job.Fixed && len(job.Candidates) > 0 {
		return NewFixedTrainer(job.Algorithm, job.Series, experiments, job.Candidates[0], o.metric, o.reputation, opts...)
	}
	return NewTrainer(job.Algorithm, job.Series, experiments, job.Candidates, o.metric, o.reputation, opts...)
}

// Run trains every job and waits for all of them. A failing or panicking job
// is reported in its own outcome and never stops its siblings. Cancelling ctx
// makes pending trainers stop at their next candidate.
func (o *Orchestrator) Run(ctx context.Context, experiments []*models.ExperimentData, jobs []Job) (Report, error) {
	if len(experiments) == 0 {
		return Report{}, fmt.Errorf("no training experiments")
	}

	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]Outcome, len(jobs)),
	}
	logger := o.logger.With(slog.String("run_id", report.RunID))

	// Trainers are built inside the worker so at most o.workers deep copies
	// of the training set are alive. Cloning only reads the shared snapshots.
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range jobs {
		job := jobs[i]
		slot := &report.Outcomes[i]
		g.Go(func() error {
			*slot = o.runTrainer(ctx, logger, job, experiments)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	logger.Info("training run finished",
		slog.Int("jobs", len(jobs)),
		slog.Int("failures", len(report.Failures())),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (o *Orchestrator) runTrainer(ctx context.Context, logger *slog.Logger, job Job, experiments []*models.ExperimentData) (out Outcome) {
	start := time.Now()
	key := job.Key()
	out.Key = key
	defer func() {
		if r := recover(); r != nil {
			out.Result = Result{}
			out.Err = &TrainingFailure{Algorithm: key.Algorithm, Series: key.Series, Reason: "panic", Err: fmt.Errorf("%v", r)}
		}
		out.Duration = time.Since(start)

		outcome := metrics.OutcomeSuccess
		switch {
		case out.Err != nil:
			outcome = metrics.OutcomeError
			logger.Warn("trainer failed", slog.String("job", key.String()), slog.Any("error", out.Err))
		case !out.Result.Usable:
			outcome = metrics.OutcomeDegenerate
		}
		metrics.ObserveTraining(out.Duration, outcome)
	}()

	trainer := o.newTrainer(job, experiments, WithLogger(logger), WithFactory(o.factory))
	out.Result, out.Err = trainer.Train(ctx)
	return out
}
