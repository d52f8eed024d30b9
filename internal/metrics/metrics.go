package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels trainings and candidates that produced a result.
	OutcomeSuccess = "success"
	// OutcomeError labels failed trainings (no candidate succeeded, panics, bad input).
	OutcomeError = "error"
	// OutcomeSkipped labels candidates that could not be built into a detector.
	OutcomeSkipped = "skipped"
	// OutcomeDegenerate labels trainings whose winner is not usable for voting.
	OutcomeDegenerate = "degenerate"
)

var (
	trainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_trainer",
			Name:      "trainings_total",
			Help:      "Total number of trainer jobs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	trainingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_trainer",
			Name:      "training_seconds",
			Help:      "Trainer job latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_trainer",
			Name:      "candidates_total",
			Help:      "Candidate configurations evaluated, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches mirador-trainer collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		trainingsTotal,
		trainingDurationSeconds,
		candidatesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTraining records a trainer job duration and outcome label.
func ObserveTraining(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeDegenerate:
	default:
		outcome = OutcomeSuccess
	}
	trainingsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	trainingDurationSeconds.Observe(duration.Seconds())
}

// ObserveCandidate counts one evaluated candidate configuration.
func ObserveCandidate(outcome string) {
	if outcome != OutcomeSkipped {
		outcome = OutcomeSuccess
	}
	candidatesTotal.WithLabelValues(outcome).Inc()
}
