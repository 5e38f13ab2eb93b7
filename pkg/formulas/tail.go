package formulas

import (
	"math"
	"sort"
)

// TailRank returns the 1-based rank of the value at the (1 - confidence) tail of n
// sorted observations: ceil((1 - confidence) * n), clamped to [1, n].
// For 95% confidence over 20 observations this is the worst value; over 100 it is the 5th worst.
func TailRank(n int, confidence float64) int {
	if n <= 0 {
		return 0
	}
	rank := int(math.Ceil(float64(n)*(1.0-confidence) - 1e-9))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return rank
}

// TailQuantile returns the empirical lower-tail quantile of values at the confidence level
// along with its rank. Values are sorted ascending (worst first); the input is not modified.
func TailQuantile(values []float64, confidence float64) (float64, int) {
	if len(values) == 0 {
		return 0, 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := TailRank(len(sorted), confidence)
	return sorted[rank-1], rank
}

// CalculateCVaR calculates Conditional Value at Risk: the average of the values at or
// below the tail quantile for the confidence level.
func CalculateCVaR(values []float64, confidence float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	tail := sorted[:TailRank(len(sorted), confidence)]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}
