// Package scoring turns per-snapshot anomaly scores into metric and
// reputation values.
package scoring

import "github.com/miradorstack/mirador-trainer/internal/models"

// Detector is the scoring-side view of a detection algorithm.
type Detector interface {
	Evaluate(snap models.Snapshot) float64
}

// Scores maps snapshot keys (models.TimeKey) to anomaly scores.
type Scores map[int64]float64

// Anomalous binarises a score: values of at least 1.0 are anomalous.
func Anomalous(score float64) bool {
	return score >= 1.0
}

// ScoreSnapshots evaluates a detector on every snapshot.
func ScoreSnapshots(det Detector, snaps []models.Snapshot) Scores {
	scores := make(Scores, len(snaps))
	for _, snap := range snaps {
		scores[snap.Key()] = det.Evaluate(snap)
	}
	return scores
}

// AnomalyRate is the fraction of snapshots flagged anomalous, 0 when empty.
func AnomalyRate(snaps []models.Snapshot, scores Scores) float64 {
	if len(snaps) == 0 {
		return 0
	}
	flagged := 0
	for _, snap := range snaps {
		if Anomalous(scores[snap.Key()]) {
			flagged++
		}
	}
	return float64(flagged) / float64(len(snaps))
}

// confusion summarises detection outcomes over one snapshot sequence.
//
// A snapshot carrying a fault injected at its own timestamp is a detection
// point. The snapshots immediately following it that still comply with the
// fault are undetectable: they are neither credited nor penalised. The
// compliant run is contiguous and scanning stops at the first snapshot that
// falls outside it.
type confusion struct {
	total        int
	faults       int
	hits         int
	undetectable int
	falseAlarms  int
}

func (c confusion) misses() int {
	return c.faults - c.hits
}

func (c confusion) trueNegatives() int {
	return c.total - c.undetectable - c.faults - c.falseAlarms
}

// detectable is the number of snapshots that can be judged at all.
func (c confusion) detectable() int {
	return c.total - c.undetectable
}

func countOutcomes(snaps []models.Snapshot, scores Scores) confusion {
	c := confusion{total: len(snaps)}
	for i := 0; i < len(snaps); i++ {
		snap := snaps[i]
		anomalous := Anomalous(scores[snap.Key()])
		if !snap.InjectedHere() {
			if anomalous {
				c.falseAlarms++
			}
			continue
		}
		c.faults++
		if anomalous {
			c.hits++
		}
		for i+1 < len(snaps) && snap.Injection.CompliesWith(snaps[i+1].Timestamp) {
			i++
			c.undetectable++
		}
	}
	return c
}
