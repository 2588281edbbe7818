// Package balance provides the weight fitters that reweight control units
// to match a treated unit's profile: a simplex-constrained synthetic control
// solver and a maximum-entropy dual solver. Both consume an immutable
// balancing Target so that pipeline stages can substitute model-derived
// features without mutating shared state.
package balance

import (
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/pkg/errors"
)

// Target is the balancing problem data: one column of features per control
// unit in Z0, and the treated unit's profile Z1 over the same features. A
// Target is constructed once per pipeline stage and never modified.
type Target struct {
	z0 *mat.Dense
	z1 *mat.VecDense
}

// NewTarget validates and builds a balancing target. Z0 must have as many
// rows as Z1 has entries.
func NewTarget(z0 *mat.Dense, z1 *mat.VecDense) (Target, error) {
	if z0 == nil || z1 == nil {
		return Target{}, errors.Wrap(errors.ErrEmptyData, "balance.NewTarget")
	}
	r, _ := z0.Dims()
	if z1.Len() != r {
		return Target{}, errors.NewDimensionError("balance.NewTarget", r, z1.Len(), 0)
	}
	return Target{z0: z0, z1: z1}, nil
}

// Z0 returns the control feature matrix (features x controls).
func (t Target) Z0() *mat.Dense { return t.z0 }

// Z1 returns the treated profile vector.
func (t Target) Z1() *mat.VecDense { return t.z1 }

// Dims returns the feature and control counts.
func (t Target) Dims() (features, controls int) {
	r, c := t.z0.Dims()
	return r, c
}

// Imbalance returns Z0*w - Z1, the per-feature balance gap at weights w.
func (t Target) Imbalance(w []float64) []float64 {
	r, c := t.z0.Dims()
	gap := make([]float64, r)
	for j := 0; j < r; j++ {
		s := -t.z1.AtVec(j)
		for i := 0; i < c; i++ {
			s += t.z0.At(j, i) * w[i]
		}
		gap[j] = s
	}
	return gap
}

// Fitter is the common weight-fitting contract. Implementations return a
// fresh FitResult; they never retain or modify the target.
type Fitter interface {
	Fit(t Target) (*FitResult, error)
}
