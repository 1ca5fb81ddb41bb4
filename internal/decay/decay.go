// Package decay implements exponential half-life weighting for
// historical observations. Older memories count for less; nothing is
// deleted, only down-weighted.
package decay

import (
	"math"
	"time"
)

// ln(2), so that Weight(halfLife, halfLife) == 0.5.
const ln2 = 0.693

// Weight returns the decay factor for an observation of the given age.
// A zero or negative half-life disables decay (weight 1).
func Weight(age time.Duration, halfLifeDays int) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	days := age.Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Exp(-ln2 * days / float64(halfLifeDays))
}

// WeightAt is Weight with an explicit observation time and reference now.
func WeightAt(observed, now time.Time, halfLifeDays int) float64 {
	return Weight(now.Sub(observed), halfLifeDays)
}

// Sample is one historical value with its observation time.
type Sample struct {
	Value      float64
	ObservedAt time.Time
}

// WeightedAverage computes the decay-weighted mean of samples as of now.
// Returns (0, false) when there are no samples or all weight has decayed
// to zero.
func WeightedAverage(samples []Sample, now time.Time, halfLifeDays int) (float64, bool) {
	var sum, total float64
	for _, s := range samples {
		w := WeightAt(s.ObservedAt, now, halfLifeDays)
		sum += w * s.Value
		total += w
	}
	if total == 0 {
		return 0, false
	}
	return sum / total, true
}
