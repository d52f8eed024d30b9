package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-trainer/internal/dataset"
	"github.com/miradorstack/mirador-trainer/internal/engine"
	"github.com/miradorstack/mirador-trainer/internal/repo"
	"github.com/miradorstack/mirador-trainer/internal/services"
)

// Trainer runs training requests.
type Trainer interface {
	Train(ctx context.Context, req services.TrainRequest) (*services.TrainResponse, error)
}

// TrainerHandler adapts a Trainer to the TrainerEngine gRPC service.
type TrainerHandler struct {
	UnimplementedTrainerEngineServer

	logger  *slog.Logger
	trainer Trainer
}

// NewTrainerHandler constructs the gRPC handler.
func NewTrainerHandler(logger *slog.Logger, trainer Trainer) *TrainerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainerHandler{logger: logger, trainer: trainer}
}

// Train decodes the request document, runs training and encodes the report.
func (h *TrainerHandler) Train(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if h.trainer == nil {
		return nil, status.Error(codes.FailedPrecondition, "trainer not configured")
	}
	domainReq, err := FromStructTrainRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := h.trainer.Train(ctx, domainReq)
	if err != nil {
		code := statusCode(err)
		if code == codes.Internal {
			h.logger.Error("training failed", slog.Any("error", err))
		}
		return nil, status.Error(code, err.Error())
	}

	out, err := ToStructTrainResponse(resp)
	if err != nil {
		h.logger.Error("encode training report", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode training report")
	}
	return out, nil
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return codes.InvalidArgument
	case errors.Is(err, repo.ErrRunNotFound):
		return codes.NotFound
	case errors.Is(err, dataset.ErrNoExperiments):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// FromStructTrainRequest maps the request document into a TrainRequest. A nil
// or empty document trains with the configured defaults.
func FromStructTrainRequest(req *structpb.Struct) (services.TrainRequest, error) {
	var out services.TrainRequest
	if req == nil {
		return out, nil
	}
	fields := req.GetFields()

	var err error
	if out.Runs, err = stringList(fields, "runs"); err != nil {
		return out, err
	}
	if out.Algorithms, err = stringList(fields, "algorithms"); err != nil {
		return out, err
	}
	if out.Layers, err = stringList(fields, "layers"); err != nil {
		return out, err
	}
	if out.Categories, err = stringList(fields, "categories"); err != nil {
		return out, err
	}
	if out.Metric, err = stringField(fields, "metric"); err != nil {
		return out, err
	}
	if out.Reputation, err = stringField(fields, "reputation"); err != nil {
		return out, err
	}
	if v, ok := fields["absolute"]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return out, fmt.Errorf("absolute must be a boolean")
		}
		absolute := b.BoolValue
		out.Absolute = &absolute
	}
	return out, nil
}

func stringField(fields map[string]*structpb.Value, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s.StringValue, nil
}

func stringList(fields map[string]*structpb.Value, key string) ([]string, error) {
	v, ok := fields[key]
	if !ok {
		return nil, nil
	}
	list, isList := v.GetKind().(*structpb.Value_ListValue)
	if !isList {
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
	out := make([]string, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		s, isString := item.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, fmt.Errorf("%s[%d] must be a string", key, i)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

// ToStructTrainResponse converts a training report into its document form.
// Scores that are not finite are reported as null.
func ToStructTrainResponse(resp *services.TrainResponse) (*structpb.Struct, error) {
	if resp == nil {
		return nil, fmt.Errorf("response is nil")
	}
	report := resp.Report

	experiments := make([]any, 0, len(resp.Experiments))
	for _, name := range resp.Experiments {
		experiments = append(experiments, name)
	}

	results := make([]any, 0, len(report.Outcomes))
	for _, res := range report.Results() {
		results = append(results, resultDocument(res))
	}

	failures := make([]any, 0)
	for _, o := range report.Failures() {
		failures = append(failures, map[string]any{
			"job":      o.Key.String(),
			"error":    o.Err.Error(),
			"duration": o.Duration.String(),
		})
	}

	doc := map[string]any{
		"run_id":      report.RunID,
		"started_at":  report.StartedAt.Format(time.RFC3339Nano),
		"finished_at": report.FinishedAt.Format(time.RFC3339Nano),
		"metric":      string(resp.Metric.Type()),
		"absolute":    resp.Metric.Absolute(),
		"reputation":  string(resp.Reputation.Type()),
		"experiments": experiments,
		"results":     results,
		"failures":    failures,
	}

	if ens := resp.Ensemble; ens != nil {
		members := make([]any, 0, len(ens.Members))
		for _, m := range ens.Members {
			members = append(members, map[string]any{
				"job":    m.Result.Key().String(),
				"weight": finite(m.Weight()),
			})
		}
		scores := make([]any, 0, len(resp.EnsembleScores))
		for _, s := range resp.EnsembleScores {
			scores = append(scores, map[string]any{
				"experiment": s.Experiment,
				"value":      finite(s.Value),
			})
		}
		doc["ensemble"] = map[string]any{
			"threshold": finite(ens.Threshold),
			"members":   members,
			"scores":    scores,
		}
	}

	return structpb.NewStruct(doc)
}

func resultDocument(res engine.Result) map[string]any {
	params := make(map[string]any, res.Configuration.Len())
	for k, v := range res.Configuration.Map() {
		params[k] = v
	}
	return map[string]any{
		"algorithm":        string(res.AlgorithmType),
		"series":           res.SeriesName,
		"layer":            string(res.Layer),
		"category":         string(res.Category),
		"parameters":       params,
		"metric_score":     finite(res.MetricScore),
		"reputation_score": finite(res.ReputationScore),
		"usable":           res.Usable,
		"evaluated":        float64(res.Evaluated),
		"skipped":          float64(res.Skipped),
	}
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
