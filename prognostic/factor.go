package prognostic

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// GSYNOptions configures the latent factor backend.
type GSYNOptions struct {
	// MaxRank bounds the factor rank search. Default 5.
	MaxRank int
	// Tol is the subspace-iteration convergence tolerance. Default 1e-3.
	Tol float64
	// MaxIter bounds the subspace iterations per rank. Default 500.
	MaxIter int
}

func (o *GSYNOptions) defaults() {
	if o.MaxRank <= 0 {
		o.MaxRank = 5
	}
	if o.Tol <= 0 {
		o.Tol = 1e-3
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 500
	}
}

// FactorModel is the interactive fixed-effects outcome model. It stacks the
// pre and post outcomes into a full period-by-unit matrix, marks the treated
// unit-period cells, and fits additive unit and time effects plus latent
// factors estimated from the control units. The treated unit's factor
// loadings come from a pre-period regression, and the rank is chosen by
// leave-one-out error over the pre-periods, searching ranks 0..MaxRank.
type FactorModel struct {
	Opts GSYNOptions
}

// Fit implements the Model contract. Params retains the full residual
// matrix for the controls and the counterfactual matrix for the treated
// units, which the factor-augmented composition needs for residual
// balancing.
func (f FactorModel) Fit(X, Y *mat.Dense, trt []bool) (*Fit, error) {
	opts := f.Opts
	opts.defaults()

	n, nPre, nPost, err := validateInputs("FactorModel.Fit", X, Y, trt)
	if err != nil {
		return nil, err
	}
	ctrl := controlIndices(trt)
	if len(ctrl) < 2 {
		return nil, errors.NewValueError("FactorModel.Fit", "need at least two control units")
	}
	if nPre < 3 {
		return nil, errors.NewValueError("FactorModel.Fit", "need at least three pre-periods for rank selection")
	}

	T := nPre + nPost
	nc := len(ctrl)

	// Full period-by-unit outcome matrix over the pre+post window. Treated
	// cells need no explicit mask: the factors and effects come from the
	// control columns only, which is equivalent on a balanced panel.
	outcome := mat.NewDense(T, n, nil)
	for t := 0; t < T; t++ {
		for i := 0; i < n; i++ {
			if t < nPre {
				outcome.Set(t, i, X.At(i, t))
			} else {
				outcome.Set(t, i, Y.At(i, t-nPre))
			}
		}
	}

	// Additive effects from the fully observed controls.
	C := mat.NewDense(T, nc, nil)
	for c, i := range ctrl {
		for t := 0; t < T; t++ {
			C.Set(t, c, outcome.At(t, i))
		}
	}
	mu := mat.Sum(C) / float64(T*nc)
	alphaU := make([]float64, nc)
	for c := 0; c < nc; c++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += C.At(t, c)
		}
		alphaU[c] = s/float64(T) - mu
	}
	xiT := make([]float64, T)
	for t := 0; t < T; t++ {
		s := 0.0
		for c := 0; c < nc; c++ {
			s += C.At(t, c)
		}
		xiT[t] = s/float64(nc) - mu
	}
	R := mat.NewDense(T, nc, nil)
	for t := 0; t < T; t++ {
		for c := 0; c < nc; c++ {
			R.Set(t, c, C.At(t, c)-mu-alphaU[c]-xiT[t])
		}
	}

	maxRank := opts.MaxRank
	if maxRank > nc-1 {
		maxRank = nc - 1
	}
	if maxRank > T-1 {
		maxRank = T - 1
	}

	treatedIdx := make([]int, 0, n-nc)
	for i, t := range trt {
		if t {
			treatedIdx = append(treatedIdx, i)
		}
	}

	// Rank search: leave-one-out error of the treated pre-period loading
	// regression, summed over treated units.
	bestRank := -1
	bestMSE := math.Inf(1)
	var bestQ *mat.Dense
	for r := 0; r <= maxRank; r++ {
		if nPre < r+2 {
			break
		}
		var Q *mat.Dense
		if r > 0 {
			Q = dominantSubspace(R, r, opts.Tol, opts.MaxIter)
		}
		mse := 0.0
		ok := true
		for _, ti := range treatedIdx {
			d := demeanedSeries(outcome, ti, mu, xiT)
			m, err := looMSE(d, Q, r, nPre)
			if err != nil {
				ok = false
				break
			}
			mse += m
		}
		if ok && mse < bestMSE {
			bestMSE = mse
			bestRank = r
			bestQ = Q
		}
	}
	if bestRank < 0 {
		return nil, errors.NewValueError("FactorModel.Fit", "rank selection failed: too few pre-periods")
	}

	// Control residuals after removing effects and the rank-best factors.
	resid := mat.NewDense(T, nc, nil)
	resid.CloneFrom(R)
	if bestRank > 0 {
		// resid = R - Q*(Q^T R)
		var proj mat.Dense
		proj.Mul(bestQ.T(), R)
		var fitPart mat.Dense
		fitPart.Mul(bestQ, &proj)
		resid.Sub(R, &fitPart)
	}

	// Counterfactuals for the treated units over the full window.
	y0hatT := mat.NewDense(len(treatedIdx), T, nil)
	for k, ti := range treatedIdx {
		d := demeanedSeries(outcome, ti, mu, xiT)
		coef, err := preRegression(d, bestQ, bestRank, nPre)
		if err != nil {
			return nil, err
		}
		for t := 0; t < T; t++ {
			cf := mu + xiT[t] + coef[0]
			for j := 0; j < bestRank; j++ {
				cf += coef[j+1] * bestQ.At(t, j)
			}
			y0hatT.Set(k, t, cf)
		}
	}

	// y0hat: controls get residual + fitted (their observed outcome);
	// treated units get the factor counterfactual.
	y0hat := mat.NewDense(n, nPost, nil)
	for c, i := range ctrl {
		for t := nPre; t < T; t++ {
			fitVal := mu + alphaU[c] + xiT[t]
			if bestRank > 0 {
				for j := 0; j < bestRank; j++ {
					var proj float64
					for tt := 0; tt < T; tt++ {
						proj += bestQ.At(tt, j) * R.At(tt, c)
					}
					fitVal += bestQ.At(t, j) * proj
				}
			}
			y0hat.Set(i, t-nPre, fitVal+resid.At(t, c))
		}
	}
	for k, ti := range treatedIdx {
		for t := nPre; t < T; t++ {
			y0hat.Set(ti, t-nPre, y0hatT.At(k, t))
		}
	}

	log.Debug().
		Str(log.OperationKey, "FactorModel.Fit").
		Int(log.RankKey, bestRank).
		Int(log.ControlsKey, nc).
		Msg("factor model fit complete")

	return &Fit{
		Y0Hat: y0hat,
		Params: Params{
			Resid:  resid,
			Y0HatT: y0hatT,
			Rank:   bestRank,
		},
	}, nil
}

// isCondition reports whether err is gonum's ill-conditioning notice, which
// still comes with a usable least-squares solution.
func isCondition(err error) bool {
	_, ok := err.(mat.Condition)
	return ok
}

// demeanedSeries removes the grand mean and time effects from unit i's
// outcome series.
func demeanedSeries(outcome *mat.Dense, i int, mu float64, xiT []float64) []float64 {
	T := len(xiT)
	d := make([]float64, T)
	for t := 0; t < T; t++ {
		d[t] = outcome.At(t, i) - mu - xiT[t]
	}
	return d
}

// preRegression regresses the demeaned treated series on [1, factors] over
// the pre-periods only. The intercept absorbs the treated unit effect.
func preRegression(d []float64, Q *mat.Dense, r, nPre int) ([]float64, error) {
	A := mat.NewDense(nPre, r+1, nil)
	b := mat.NewVecDense(nPre, nil)
	for t := 0; t < nPre; t++ {
		A.Set(t, 0, 1)
		for j := 0; j < r; j++ {
			A.Set(t, j+1, Q.At(t, j))
		}
		b.SetVec(t, d[t])
	}
	var coef mat.VecDense
	if err := coef.SolveVec(A, b); err != nil && !isCondition(err) {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "FactorModel.preRegression")
	}
	out := make([]float64, r+1)
	for j := range out {
		out[j] = coef.AtVec(j)
	}
	return out, nil
}

// looMSE computes the leave-one-out mean squared error of the pre-period
// loading regression at rank r.
func looMSE(d []float64, Q *mat.Dense, r, nPre int) (float64, error) {
	sse := 0.0
	for hold := 0; hold < nPre; hold++ {
		A := mat.NewDense(nPre-1, r+1, nil)
		b := mat.NewVecDense(nPre-1, nil)
		row := 0
		for t := 0; t < nPre; t++ {
			if t == hold {
				continue
			}
			A.Set(row, 0, 1)
			for j := 0; j < r; j++ {
				A.Set(row, j+1, Q.At(t, j))
			}
			b.SetVec(row, d[t])
			row++
		}
		var coef mat.VecDense
		if err := coef.SolveVec(A, b); err != nil && !isCondition(err) {
			return 0, errors.Wrap(errors.ErrSingularMatrix, "FactorModel.looMSE")
		}
		pred := coef.AtVec(0)
		for j := 0; j < r; j++ {
			pred += coef.AtVec(j+1) * Q.At(hold, j)
		}
		diff := d[hold] - pred
		sse += diff * diff
	}
	return sse / float64(nPre), nil
}

// dominantSubspace runs orthogonal iteration on R*R^T to extract the top-r
// left singular subspace of R, stopping when the captured energy change
// falls below tol.
func dominantSubspace(R *mat.Dense, r int, tol float64, maxIter int) *mat.Dense {
	T, _ := R.Dims()
	rng := rand.New(rand.NewSource(1))
	Q := mat.NewDense(T, r, nil)
	for t := 0; t < T; t++ {
		for j := 0; j < r; j++ {
			Q.Set(t, j, rng.NormFloat64())
		}
	}
	gramSchmidt(Q)

	prevEnergy := 0.0
	for iter := 0; iter < maxIter; iter++ {
		// Z = R * (R^T * Q)
		var RtQ mat.Dense
		RtQ.Mul(R.T(), Q)
		var Z mat.Dense
		Z.Mul(R, &RtQ)
		Q.CloneFrom(&Z)
		gramSchmidt(Q)

		var proj mat.Dense
		proj.Mul(R.T(), Q)
		energy := 0.0
		rows, cols := proj.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				v := proj.At(i, j)
				energy += v * v
			}
		}
		if prevEnergy > 0 && math.Abs(energy-prevEnergy) <= tol*prevEnergy {
			break
		}
		prevEnergy = energy
	}
	return Q
}

// gramSchmidt orthonormalizes the columns of Q in place.
func gramSchmidt(Q *mat.Dense) {
	T, r := Q.Dims()
	for j := 0; j < r; j++ {
		for k := 0; k < j; k++ {
			dot := 0.0
			for t := 0; t < T; t++ {
				dot += Q.At(t, j) * Q.At(t, k)
			}
			for t := 0; t < T; t++ {
				Q.Set(t, j, Q.At(t, j)-dot*Q.At(t, k))
			}
		}
		norm := 0.0
		for t := 0; t < T; t++ {
			norm += Q.At(t, j) * Q.At(t, j)
		}
		norm = math.Sqrt(norm)
		if norm < 1e-12 {
			// Degenerate direction: replace with a unit basis vector.
			for t := 0; t < T; t++ {
				Q.Set(t, j, 0)
			}
			Q.Set(j%T, j, 1)
			continue
		}
		for t := 0; t < T; t++ {
			Q.Set(t, j, Q.At(t, j)/norm)
		}
	}
}
