package engine

import (
	"errors"
	"fmt"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
)

// TrainingFailure reports that no candidate produced a result for one
// (algorithm, series) pair.
type TrainingFailure struct {
	Algorithm algorithms.Type
	Series    string
	Reason    string
	Err       error
}

func (e *TrainingFailure) Error() string {
	target := string(e.Algorithm)
	if e.Series != "" {
		target += "/" + e.Series
	}
	if e.Err == nil {
		return fmt.Sprintf("training %s: %s", target, e.Reason)
	}
	return fmt.Sprintf("training %s: %s: %v", target, e.Reason, e.Err)
}

func (e *TrainingFailure) Unwrap() error {
	return e.Err
}

// IsTrainingFailure reports whether err carries a TrainingFailure.
func IsTrainingFailure(err error) bool {
	var target *TrainingFailure
	return errors.As(err, &target)
}
