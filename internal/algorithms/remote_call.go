package algorithms

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/models"
)

const remoteCallWeightKey = "rcc_weight"

// RemoteCallChecker checks whether the duration and outcome of the service
// calls active in a snapshot comply with the services' historical timing.
type RemoteCallChecker struct {
	weight float64
}

func newRemoteCallChecker(_ *models.DataSeries, conf models.Configuration) (Detector, error) {
	weight, err := conf.Float(remoteCallWeightKey)
	if err != nil {
		return nil, err
	}
	if weight < 0 || math.IsNaN(weight) {
		return nil, &models.ConfigurationError{Key: remoteCallWeightKey, Reason: "must be a non-negative number"}
	}
	return &RemoteCallChecker{weight: weight}, nil
}

// Evaluate averages the per-call anomaly of the calls alive at the snapshot.
// Failed calls ending at the snapshot score the configured weight.
func (c *RemoteCallChecker) Evaluate(snap models.Snapshot) float64 {
	if len(snap.Calls) == 0 {
		return 0
	}
	total := 0.0
	for _, call := range snap.Calls {
		total += c.evaluateCall(snap.Timestamp, call, snap.Stats)
	}
	return total / float64(len(snap.Calls))
}

func (c *RemoteCallChecker) evaluateCall(at time.Time, call models.ServiceCall, stats map[string]models.ServiceStat) float64 {
	stat, known := stats[call.ServiceName]
	if call.EndsAt(at) {
		if !call.Succeeded() {
			return c.weight
		}
		if !known {
			return 0
		}
		return deviation(call.End.Sub(call.Start).Seconds(), stat.Time, 1)
	}
	if !known {
		return 0
	}
	return overrun(at.Sub(call.Start).Seconds(), stat.Time)
}

// Weight returns the score assigned to failed calls.
func (c *RemoteCallChecker) Weight() float64 { return c.weight }

// DataType is empty: the checker consumes service calls, not indicators.
func (c *RemoteCallChecker) DataType() models.DataCategory { return "" }

// Indicator is empty for the same reason.
func (c *RemoteCallChecker) Indicator() string { return "" }

// ViewSpec requests plain snapshots.
func (c *RemoteCallChecker) ViewSpec() models.ViewSpec { return models.ViewSpec{} }
