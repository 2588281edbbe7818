// Package screen implements LASSO-based covariate screening for the
// balancing step: a single regularized-regression screen and a double
// screen that unions it with an entropy-dual selection at the minimal
// feasible imbalance tolerance, found by binary search.
package screen

import (
	"math"

	"github.com/causalgo/augsynth/pkg/errors"
)

// NotFound is the sentinel returned by SearchMin when no grid point in
// range is feasible.
const NotFound = -1.0

// SearchMin finds the smallest point of the grid {lo, lo+by, ...} <= hi for
// which feas holds, assuming feasibility is monotone non-decreasing in x.
// It probes the top of the range first, then bisects, so an always-false
// predicate costs a single evaluation. A predicate error aborts the search.
func SearchMin(lo, hi, by float64, feas func(x float64) (bool, error)) (float64, error) {
	if by <= 0 {
		return NotFound, errors.NewValidationError("by", "step must be positive", by)
	}
	if hi < lo {
		return NotFound, errors.NewValidationError("hi", "upper bound below lower bound", hi)
	}

	n := int(math.Floor((hi-lo)/by)) + 1
	at := func(k int) float64 { return lo + float64(k)*by }

	ok, err := feas(at(n - 1))
	if err != nil {
		return NotFound, err
	}
	if !ok {
		return NotFound, nil
	}

	// Bisect for the first feasible grid index.
	loIdx, hiIdx := 0, n-1
	for loIdx < hiIdx {
		mid := (loIdx + hiIdx) / 2
		ok, err := feas(at(mid))
		if err != nil {
			return NotFound, err
		}
		if ok {
			hiIdx = mid
		} else {
			loIdx = mid + 1
		}
	}
	return at(hiIdx), nil
}
