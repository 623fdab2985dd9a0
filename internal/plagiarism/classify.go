package plagiarism

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThresholdPercent flags any pair at or above 10% similarity
const DefaultThresholdPercent = 10.0

const (
	LabelSuspect = "suspect"
	LabelClear   = "clear"
)

var ErrInvalidThreshold = errors.New("threshold must be within [0, 100]")

// SuspectPair is a pair whose score reached the threshold
type SuspectPair struct {
	SimilarityEntry
	ThresholdPercent float64 `json:"threshold"`
}

func ValidateThreshold(thresholdPercent float64) error {
	if math.IsNaN(thresholdPercent) || thresholdPercent < 0 || thresholdPercent > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, thresholdPercent)
	}
	return nil
}

// IsSuspect reports whether score, as a percentage, reaches the threshold
func IsSuspect(score, thresholdPercent float64) bool {
	return score*100 >= thresholdPercent
}

func Label(score, thresholdPercent float64) string {
	if IsSuspect(score, thresholdPercent) {
		return LabelSuspect
	}
	return LabelClear
}

// Classify returns the computed pairs at or above the threshold, highest
// score first. Pairs with equal scores keep matrix order.
func Classify(m *SimilarityMatrix, thresholdPercent float64) ([]SuspectPair, error) {
	if err := ValidateThreshold(thresholdPercent); err != nil {
		return nil, err
	}
	return suspectsOf(m.Entries(), thresholdPercent), nil
}

// ClassifyEntries applies the threshold to an already ranked list
func ClassifyEntries(entries []SimilarityEntry, thresholdPercent float64) ([]SuspectPair, error) {
	if err := ValidateThreshold(thresholdPercent); err != nil {
		return nil, err
	}
	return suspectsOf(entries, thresholdPercent), nil
}

func suspectsOf(entries []SimilarityEntry, thresholdPercent float64) []SuspectPair {
	flagged := make([]SimilarityEntry, 0)
	for _, e := range entries {
		if IsSuspect(e.Score, thresholdPercent) {
			flagged = append(flagged, e)
		}
	}
	sortDescending(flagged)

	suspects := make([]SuspectPair, 0, len(flagged))
	for _, e := range flagged {
		suspects = append(suspects, SuspectPair{SimilarityEntry: e, ThresholdPercent: thresholdPercent})
	}
	return suspects
}
