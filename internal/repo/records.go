package repo

import (
	"context"
	"time"
)

// RunSummary identifies a stored experiment run.
type RunSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// ObservationRecord is one indicator value of one sample. Timestamps are kept
// as raw text and parsed when the experiment is assembled.
type ObservationRecord struct {
	Timestamp string `json:"timestamp" db:"ts"`
	Indicator string `json:"indicator" db:"indicator"`
	Layer     string `json:"layer" db:"layer"`
	Category  string `json:"category" db:"category"`
	Value     string `json:"value" db:"value"`
}

// CallRecord is one service invocation. An empty End marks a call still open.
type CallRecord struct {
	Service      string `json:"service" db:"service"`
	Start        string `json:"start" db:"start_ts"`
	End          string `json:"end" db:"end_ts"`
	ResponseCode string `json:"response_code" db:"response_code"`
}

// InjectionRecord is one injected fault. DurationSeconds, when positive,
// bounds the window in which later samples are attributed to the fault.
type InjectionRecord struct {
	Timestamp       string  `json:"timestamp" db:"ts"`
	Description     string  `json:"description" db:"description"`
	DurationSeconds float64 `json:"duration_seconds" db:"duration_seconds"`
}

// StatRecord is one historical mean/std pair. An empty Indicator refers to
// the call duration of the service; Scope is "first" or "all".
type StatRecord struct {
	Service   string  `json:"service" db:"service"`
	Indicator string  `json:"indicator" db:"indicator"`
	Scope     string  `json:"scope" db:"scope"`
	Avg       float64 `json:"avg" db:"avg"`
	Std       float64 `json:"std" db:"std"`
}

// TimingRecord is one performance timing sample (ms) for a layer.
type TimingRecord struct {
	Kind  string `json:"kind" db:"kind"`
	Layer string `json:"layer" db:"layer"`
	Value int    `json:"value" db:"value"`
}

// RunRecord holds every raw record of one experiment run.
type RunRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Observations []ObservationRecord `json:"observations"`
	Calls        []CallRecord        `json:"calls"`
	Injections   []InjectionRecord   `json:"injections"`
	Stats        []StatRecord        `json:"stats"`
	Timings      []TimingRecord      `json:"timings"`
}

// ExperimentSource lists and loads experiment runs.
type ExperimentSource interface {
	ListRuns(ctx context.Context) ([]RunSummary, error)
	LoadRun(ctx context.Context, id string) (RunRecord, error)
}

// TrainedRecord is a persisted trained configuration.
type TrainedRecord struct {
	TrainingID      string    `db:"training_id"`
	Algorithm       string    `db:"algorithm"`
	Series          string    `db:"series"`
	Layer           string    `db:"layer"`
	Category        string    `db:"category"`
	Parameters      string    `db:"parameters"`
	MetricScore     float64   `db:"metric_score"`
	ReputationScore float64   `db:"reputation_score"`
	Usable          bool      `db:"usable"`
	CreatedAt       time.Time `db:"created_at"`
}
