// Package stats scores merchant activity accumulated from stored
// transactions. A merchant seen once is noise; one seen twenty times with
// steady amounts is an established spending pattern.
package stats

import "math"

const (
	// rareCountThreshold is the minimum row count for a merchant to stop
	// counting as a one-off.
	rareCountThreshold = 3
	// countSaturation is the row count at which the count component of the
	// reliability score maxes out.
	countSaturation = 20
	// establishedMinReliability is the score at or above which a merchant
	// counts as established.
	establishedMinReliability = 0.5
)

// MerchantSummary is the scored activity of one merchant.
type MerchantSummary struct {
	Merchant    string  `json:"merchant"`
	Count       int64   `json:"count"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Reliability float64 `json:"reliability"`
	Rare        bool    `json:"rare"`
	Established bool    `json:"established"`
}

// Reliability scores a merchant between 0 and 1. Row count dominates,
// saturating on a log scale; amount consistency (coefficient of variation)
// refines it. A merchant with no usable mean scores neutral on consistency.
func Reliability(count int64, mean, stdDev float64) float64 {
	countScore := math.Min(1, math.Log1p(float64(count))/math.Log1p(countSaturation))

	consistency := 0.5
	if mean > 0 {
		cv := stdDev / mean
		consistency = math.Max(0, 1-math.Min(1, cv))
	}

	return 0.7*countScore + 0.3*consistency
}

// Rare reports whether the row count is below the one-off threshold.
func Rare(count int64) bool {
	return count < rareCountThreshold
}

// Summarize scores one merchant's aggregated activity.
func Summarize(merchant string, count int64, mean, stdDev, min, max float64) MerchantSummary {
	r := Reliability(count, mean, stdDev)
	return MerchantSummary{
		Merchant:    merchant,
		Count:       count,
		Mean:        mean,
		StdDev:      stdDev,
		Min:         min,
		Max:         max,
		Reliability: math.Round(r*1000) / 1000,
		Rare:        Rare(count),
		Established: r >= establishedMinReliability,
	}
}
