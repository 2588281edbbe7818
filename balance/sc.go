package balance

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// SCOptions configures the synthetic control weight fitter.
type SCOptions struct {
	// MaxIter bounds the Frank-Wolfe iterations. Default 10000.
	MaxIter int
	// Tol is the duality-gap stopping tolerance. Default 1e-8.
	Tol float64
}

func (o *SCOptions) defaults() {
	if o.MaxIter <= 0 {
		o.MaxIter = 10000
	}
	if o.Tol <= 0 {
		o.Tol = 1e-8
	}
}

// SC fits plain synthetic control weights: the simplex-constrained least
// squares problem
//
//	min_w 0.5*||Z1 - Z0*w||^2  s.t.  w >= 0, sum(w) = 1
//
// solved by Frank-Wolfe with exact line search. Weights are nonnegative and
// sum to one by construction.
type SC struct {
	Opts SCOptions
}

// Fit solves the QP for the given target.
func (s SC) Fit(t Target) (*FitResult, error) {
	opts := s.Opts
	opts.defaults()

	nFeat, nCtrl := t.Dims()
	if nCtrl == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "SC.Fit")
	}

	// Start from uniform weights.
	w := make([]float64, nCtrl)
	for i := range w {
		w[i] = 1.0 / float64(nCtrl)
	}

	z0 := t.Z0()
	z1 := t.Z1()

	resid := mat.NewVecDense(nFeat, nil) // Z0*w - Z1
	grad := make([]float64, nCtrl)
	dir := make([]float64, nCtrl)
	z0d := mat.NewVecDense(nFeat, nil)

	wVec := mat.NewVecDense(nCtrl, w)
	converged := false
	iters := 0
	for iter := 0; iter < opts.MaxIter; iter++ {
		iters = iter + 1

		resid.MulVec(z0, wVec)
		resid.SubVec(resid, z1)

		// grad = Z0^T * resid
		for i := 0; i < nCtrl; i++ {
			s := 0.0
			for j := 0; j < nFeat; j++ {
				s += z0.At(j, i) * resid.AtVec(j)
			}
			grad[i] = s
		}

		// Linear minimization oracle: the simplex vertex with the smallest
		// gradient coordinate.
		best := 0
		for i := 1; i < nCtrl; i++ {
			if grad[i] < grad[best] {
				best = i
			}
		}

		// Duality gap g'(w - e_best).
		gap := floats.Dot(grad, w) - grad[best]
		if gap <= opts.Tol {
			converged = true
			break
		}

		// Direction d = e_best - w, exact step eta = -g'd / ||Z0 d||^2.
		copy(dir, w)
		floats.Scale(-1, dir)
		dir[best] += 1

		z0d.MulVec(z0, mat.NewVecDense(nCtrl, dir))
		denom := floats.Dot(z0d.RawVector().Data, z0d.RawVector().Data)
		if denom <= 0 {
			converged = true
			break
		}
		eta := gap / denom
		if eta > 1 {
			eta = 1
		}
		floats.AddScaled(w, eta, dir)
	}

	if !converged {
		warn := errors.NewConvergenceWarning("SC.FrankWolfe", opts.MaxIter, "duality gap above tolerance")
		errors.Warn(warn)
		log.Warn().Object("warning", warn).Msg("synthetic control weights returned before convergence")
	}

	resid.MulVec(z0, wVec)
	resid.SubVec(resid, z1)
	obj := 0.5 * floats.Dot(resid.RawVector().Data, resid.RawVector().Data)

	log.Debug().
		Str(log.OperationKey, "SC.Fit").
		Int(log.ControlsKey, nCtrl).
		Int("n_features", nFeat).
		Int("iterations", iters).
		Float64(log.ObjectiveKey, obj).
		Msg("synthetic control fit complete")

	// Per-feature balance gaps double as the dual prices for the QP.
	dual := make([]float64, nFeat)
	copy(dual, resid.RawVector().Data)

	return &FitResult{
		Weights:         w,
		Dual:            dual,
		PrimalObj:       obj,
		ScaledPrimalObj: math.Sqrt(2 * obj / float64(nFeat)),
		Feasible:        true,
	}, nil
}
