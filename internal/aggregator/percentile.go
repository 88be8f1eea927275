package aggregator

import "math"

// Percentile returns the p-th percentile (0..100) of sorted values using
// linear interpolation between closest ranks: rank = p/100*(n-1). This is the
// inclusive definition used by NumPy's default method and PERCENTILE.INC.
// ok is false for an empty input or p outside [0, 100].
func Percentile(sorted []float64, p float64) (value float64, ok bool) {
	n := len(sorted)
	if n == 0 || p < 0 || p > 100 || math.IsNaN(p) {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], true
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), true
}
