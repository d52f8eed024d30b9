package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/config"
	"github.com/miradorstack/mirador-trainer/internal/dataset"
	"github.com/miradorstack/mirador-trainer/internal/engine"
	"github.com/miradorstack/mirador-trainer/internal/ensemble"
	"github.com/miradorstack/mirador-trainer/internal/models"
	"github.com/miradorstack/mirador-trainer/internal/repo"
	"github.com/miradorstack/mirador-trainer/internal/scoring"
	"github.com/miradorstack/mirador-trainer/internal/utils"
)

// ErrInvalidRequest marks requests rejected before any training starts.
var ErrInvalidRequest = errors.New("invalid training request")

// TrainedStore persists the configurations selected for the ensemble.
type TrainedStore interface {
	StoreTrained(ctx context.Context, records []repo.TrainedRecord) error
}

// Settings are the training defaults a request may override.
type Settings struct {
	Runs             []string
	Workers          int
	Metric           string
	Absolute         bool
	Reputation       string
	ReputationValue  float64
	Layers           []string
	Categories       []string
	EnsemblePerLayer int
}

// SettingsFromConfig derives the service defaults from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Runs:             append([]string(nil), cfg.Data.Runs...),
		Workers:          cfg.Training.Workers,
		Metric:           cfg.Training.Metric,
		Absolute:         cfg.Training.Absolute,
		Reputation:       cfg.Training.Reputation,
		ReputationValue:  cfg.Training.ReputationValue,
		Layers:           append([]string(nil), cfg.Training.Layers...),
		Categories:       append([]string(nil), cfg.Training.Categories...),
		EnsemblePerLayer: cfg.Training.EnsemblePerLayer,
	}
}

// TrainRequest overrides the configured settings for one training run.
// Zero fields keep the configured value.
type TrainRequest struct {
	Runs       []string
	Algorithms []string
	Metric     string
	Absolute   *bool
	Reputation string
	Layers     []string
	Categories []string
}

// ExperimentScore is the ensemble metric on one experiment.
type ExperimentScore struct {
	Experiment string
	Value      float64
}

// TrainResponse carries the report of one training run.
type TrainResponse struct {
	Report         engine.Report
	Metric         scoring.Metric
	Reputation     scoring.Reputation
	Experiments    []string
	Ensemble       *ensemble.Ensemble
	EnsembleScores []ExperimentScore
}

// TrainerService runs training requests end to end: load experiments, train
// every (algorithm, series) pair, then select and score the ensemble.
type TrainerService struct {
	logger     *slog.Logger
	loader     *dataset.Loader
	candidates algorithms.Candidates
	settings   Settings
	store      TrainedStore
	latencies  *utils.LatencyTracker
}

// NewTrainerService constructs the service; store may be nil.
func NewTrainerService(logger *slog.Logger, loader *dataset.Loader, candidates algorithms.Candidates, settings Settings, store TrainedStore) *TrainerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainerService{
		logger:     logger,
		loader:     loader,
		candidates: candidates,
		settings:   settings,
		store:      store,
		latencies:  utils.NewLatencyTracker(256),
	}
}

// Train executes one training run.
func (s *TrainerService) Train(ctx context.Context, req TrainRequest) (*TrainResponse, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("experiment loader not configured")
	}

	plan, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	experiments, err := s.loader.Load(ctx, plan.runs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	jobs := engine.PlanJobs(experiments[0], plan.candidates, plan.layers, plan.categories)
	orchestrator := engine.NewOrchestrator(s.logger, s.settings.Workers, plan.metric, plan.reputation, nil)
	report, err := orchestrator.Run(ctx, experiments, jobs)
	if err != nil {
		return nil, utils.NewAppError("services.Train", "training run failed", err)
	}

	var store ensemble.Store
	if s.store != nil {
		store = ensemble.StoreFunc(func(ctx context.Context, runID string, members []ensemble.Member) error {
			records, err := trainedRecords(runID, members, report.FinishedAt)
			if err != nil {
				return err
			}
			return s.store.StoreTrained(ctx, records)
		})
	}
	selector := ensemble.NewSelector(s.logger, store, plan.metric, s.settings.EnsemblePerLayer)
	ens, err := selector.Select(ctx, report.RunID, report.Results())
	if err != nil {
		return nil, utils.NewAppError("services.Train", "ensemble selection failed", err)
	}

	resp := &TrainResponse{
		Report:      report,
		Metric:      plan.metric,
		Reputation:  plan.reputation,
		Experiments: make([]string, 0, len(experiments)),
		Ensemble:    ens,
	}
	for _, exp := range experiments {
		resp.Experiments = append(resp.Experiments, exp.Name)
		if len(ens.Members) > 0 {
			resp.EnsembleScores = append(resp.EnsembleScores, ExperimentScore{
				Experiment: exp.Name,
				Value:      ens.Evaluate(plan.metric, exp),
			})
		}
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 10 && count%10 == 0 {
		s.logger.Info("training latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Duration("mean", s.latencies.Mean()),
			slog.Int("samples", count),
		)
	}
	return resp, nil
}

// LatencyP95 returns the current p95 training latency.
func (s *TrainerService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

type trainingPlan struct {
	runs       []string
	candidates algorithms.Candidates
	metric     scoring.Metric
	reputation scoring.Reputation
	layers     []models.LayerType
	categories []models.DataCategory
}

func (s *TrainerService) resolve(req TrainRequest) (trainingPlan, error) {
	var plan trainingPlan

	plan.runs = s.settings.Runs
	if len(req.Runs) > 0 {
		plan.runs = req.Runs
	}

	metricName := firstNonEmpty(req.Metric, s.settings.Metric)
	absolute := s.settings.Absolute
	if req.Absolute != nil {
		absolute = *req.Absolute
	}
	metric, err := scoring.ParseMetric(metricName, absolute)
	if err != nil {
		return plan, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	plan.metric = metric

	reputation, err := scoring.ParseReputation(firstNonEmpty(req.Reputation, s.settings.Reputation), s.settings.ReputationValue, metric)
	if err != nil {
		return plan, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	plan.reputation = reputation

	plan.candidates = s.candidates
	if len(req.Algorithms) > 0 {
		plan.candidates = make(algorithms.Candidates, len(req.Algorithms))
		for _, name := range req.Algorithms {
			t, err := algorithms.ParseType(name)
			if err != nil {
				return plan, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
			confs, ok := s.candidates[t]
			if !ok {
				return plan, fmt.Errorf("%w: no candidates configured for %s", ErrInvalidRequest, t)
			}
			plan.candidates[t] = confs
		}
	}
	if len(plan.candidates) == 0 {
		return plan, fmt.Errorf("%w: no candidate configurations", ErrInvalidRequest)
	}

	layers := s.settings.Layers
	if len(req.Layers) > 0 {
		layers = req.Layers
	}
	for _, l := range layers {
		plan.layers = append(plan.layers, models.ParseLayer(l))
	}

	categories := s.settings.Categories
	if len(req.Categories) > 0 {
		categories = req.Categories
	}
	for _, c := range categories {
		plan.categories = append(plan.categories, models.ParseDataCategory(c))
	}
	return plan, nil
}

func trainedRecords(runID string, members []ensemble.Member, createdAt time.Time) ([]repo.TrainedRecord, error) {
	records := make([]repo.TrainedRecord, 0, len(members))
	for _, m := range members {
		res := m.Result
		params, err := json.Marshal(res.Configuration.Map())
		if err != nil {
			return nil, fmt.Errorf("encode %s parameters: %w", res.Key(), err)
		}
		records = append(records, repo.TrainedRecord{
			TrainingID:      runID,
			Algorithm:       string(res.AlgorithmType),
			Series:          res.SeriesName,
			Layer:           string(res.Layer),
			Category:        string(res.Category),
			Parameters:      string(params),
			MetricScore:     res.MetricScore,
			ReputationScore: res.ReputationScore,
			Usable:          res.Usable,
			CreatedAt:       createdAt,
		})
	}
	return records, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
