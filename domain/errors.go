package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownArm        = errors.New("unknown arm")
	ErrEmptyCandidateSet = errors.New("empty candidate set")
	ErrSingularState     = errors.New("singular arm state")
	ErrNotFound          = errors.New("not found")
)

// OutOfRangeRewardWarning is reported when a reward was clipped (or dropped,
// for NaN) before the update. It is a warning, not a failure.
type OutOfRangeRewardWarning struct {
	Original float64
	Applied  float64
	Min      float64
	Max      float64
	Dropped  bool
}

func (w *OutOfRangeRewardWarning) Error() string {
	if w.Dropped {
		return fmt.Sprintf("reward %v is not a number, update skipped", w.Original)
	}
	return fmt.Sprintf("reward %v outside [%v, %v], clipped to %v", w.Original, w.Min, w.Max, w.Applied)
}
