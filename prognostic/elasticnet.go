package prognostic

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/core/parallel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// ENOptions configures the elastic net backend.
type ENOptions struct {
	// Alpha is the elastic net mixing parameter in (0, 1]; 1 is the lasso.
	// Default 1.
	Alpha float64
	// Lambda fixes the penalty and skips cross-validation when positive.
	Lambda float64
	// NLambda is the length of the penalty path. Default 20.
	NLambda int
	// LambdaMinRatio sets the smallest path penalty relative to the largest.
	// Default 1e-3.
	LambdaMinRatio float64
	// NFolds is the number of CV folds. Default 5.
	NFolds int
	// MaxIter bounds coordinate descent sweeps per penalty. Default 1000.
	MaxIter int
	// Tol is the coefficient-change stopping tolerance. Default 1e-7.
	Tol float64
	// Seed drives the CV shuffle. Default 42.
	Seed int
	// Avg stacks all post-periods into a single regression instead of
	// fitting one model per period.
	Avg bool
	// NoIntercept drops the intercept; used by the covariate screens.
	NoIntercept bool
}

func (o *ENOptions) defaults() {
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = 1
	}
	if o.NLambda <= 0 {
		o.NLambda = 20
	}
	if o.LambdaMinRatio <= 0 {
		o.LambdaMinRatio = 1e-3
	}
	if o.NFolds <= 0 {
		o.NFolds = 5
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 1000
	}
	if o.Tol <= 0 {
		o.Tol = 1e-7
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
}

// ElasticNet is the regularized-regression outcome model: for each
// post-period (or the stacked response in avg mode) it fits a penalized
// linear regression on control rows, selecting the penalty by K-fold
// cross-validation, then predicts control outcomes for every unit.
type ElasticNet struct {
	Opts ENOptions
}

const perPeriodParallelThreshold = 1

// Fit implements the Model contract.
func (e ElasticNet) Fit(X, Y *mat.Dense, trt []bool) (*Fit, error) {
	opts := e.Opts
	opts.defaults()

	n, p, nPost, err := validateInputs("ElasticNet.Fit", X, Y, trt)
	if err != nil {
		return nil, err
	}
	ctrl := controlIndices(trt)
	if len(ctrl) < 2 {
		return nil, errors.NewValueError("ElasticNet.Fit", "need at least two control units")
	}

	y0hat := mat.NewDense(n, nPost, nil)

	if opts.Avg {
		Xs, ys := stackControls(X, Y, ctrl)
		coef, lambda, err := fitENColumn(Xs, ys, opts)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			pred := predictLinear(coef, X, i, p)
			for k := 0; k < nPost; k++ {
				y0hat.Set(i, k, pred)
			}
		}
		log.Debug().
			Str(log.OperationKey, "ElasticNet.Fit").
			Bool("avg", true).
			Float64(log.LambdaKey, lambda).
			Msg("elastic net fit complete")
		return &Fit{
			Y0Hat:  y0hat,
			Params: Params{Coef: [][]float64{coef}, Lambdas: []float64{lambda}},
		}, nil
	}

	Xc := mat.NewDense(len(ctrl), p, nil)
	for r, i := range ctrl {
		for j := 0; j < p; j++ {
			Xc.Set(r, j, X.At(i, j))
		}
	}

	coefs := make([][]float64, nPost)
	lambdas := make([]float64, nPost)
	errs := make([]error, nPost)

	// Per-period fits are independent.
	parallel.ParallelizeWithThreshold(nPost, perPeriodParallelThreshold, func(start, end int) {
		for k := start; k < end; k++ {
			yc := make([]float64, len(ctrl))
			for r, i := range ctrl {
				yc[r] = Y.At(i, k)
			}
			coefs[k], lambdas[k], errs[k] = fitENColumn(Xc, yc, opts)
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for k := 0; k < nPost; k++ {
		for i := 0; i < n; i++ {
			y0hat.Set(i, k, predictLinear(coefs[k], X, i, p))
		}
	}

	log.Debug().
		Str(log.OperationKey, "ElasticNet.Fit").
		Int(log.PostPeriods, nPost).
		Int(log.ControlsKey, len(ctrl)).
		Msg("elastic net fit complete")

	return &Fit{
		Y0Hat:  y0hat,
		Params: Params{Coef: coefs, Lambdas: lambdas},
	}, nil
}

// predictLinear evaluates an (intercept-first) coefficient vector on row i.
func predictLinear(coef []float64, X *mat.Dense, i, p int) float64 {
	pred := coef[0]
	for j := 0; j < p; j++ {
		pred += coef[j+1] * X.At(i, j)
	}
	return pred
}

// fitENColumn fits one penalized regression and returns the intercept-first
// coefficient vector along with the penalty it was refit at.
func fitENColumn(X *mat.Dense, y []float64, opts ENOptions) ([]float64, float64, error) {
	n, p := X.Dims()
	if len(y) != n {
		return nil, 0, errors.NewDimensionError("ElasticNet.fitENColumn", n, len(y), 0)
	}

	// Standardize columns, center the response unless the intercept is off.
	xMean := make([]float64, p)
	xStd := make([]float64, p)
	Xs := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		m := 0.0
		if !opts.NoIntercept {
			m = floats.Sum(col) / float64(n)
		}
		ss := 0.0
		for _, v := range col {
			d := v - m
			ss += d * d
		}
		s := math.Sqrt(ss / float64(n))
		if s == 0 {
			s = 1
		}
		xMean[j], xStd[j] = m, s
		for i := 0; i < n; i++ {
			Xs.Set(i, j, (col[i]-m)/s)
		}
	}
	yMean := 0.0
	if !opts.NoIntercept {
		yMean = floats.Sum(y) / float64(n)
	}
	yc := make([]float64, n)
	for i := range y {
		yc[i] = y[i] - yMean
	}

	lambdaMax := 0.0
	for j := 0; j < p; j++ {
		g := 0.0
		for i := 0; i < n; i++ {
			g += Xs.At(i, j) * yc[i]
		}
		g = math.Abs(g) / float64(n)
		if g > lambdaMax {
			lambdaMax = g
		}
	}
	lambdaMax /= math.Max(opts.Alpha, 1e-3)

	coefOut := func(b []float64) []float64 {
		beta := make([]float64, p+1)
		for j := 0; j < p; j++ {
			beta[j+1] = b[j] / xStd[j]
		}
		beta[0] = yMean
		for j := 0; j < p; j++ {
			beta[0] -= beta[j+1] * xMean[j]
		}
		return beta
	}

	if lambdaMax == 0 {
		// Constant response: all coefficients zero.
		return coefOut(make([]float64, p)), 0, nil
	}

	var lambda float64
	if opts.Lambda > 0 {
		lambda = opts.Lambda
	} else {
		path := lambdaPath(lambdaMax, opts.LambdaMinRatio, opts.NLambda)
		lambda = crossValidateEN(Xs, yc, path, opts)
	}

	// Refit on the full data, warm-starting down the path to lambda.
	b := make([]float64, p)
	for _, lam := range lambdaPath(lambdaMax, opts.LambdaMinRatio, opts.NLambda) {
		if lam < lambda {
			break
		}
		cdSolve(Xs, yc, b, lam, opts.Alpha, opts.MaxIter, opts.Tol)
	}
	cdSolve(Xs, yc, b, lambda, opts.Alpha, opts.MaxIter, opts.Tol)

	return coefOut(b), lambda, nil
}

// lambdaPath builds a log-spaced decreasing penalty sequence.
func lambdaPath(lambdaMax, minRatio float64, nLambda int) []float64 {
	path := make([]float64, nLambda)
	logMax := math.Log(lambdaMax)
	logMin := math.Log(lambdaMax * minRatio)
	for i := 0; i < nLambda; i++ {
		frac := float64(i) / float64(nLambda-1)
		path[i] = math.Exp(logMax + frac*(logMin-logMax))
	}
	return path
}

// crossValidateEN picks the path penalty minimizing mean validation MSE.
func crossValidateEN(Xs *mat.Dense, y []float64, path []float64, opts ENOptions) float64 {
	n, p := Xs.Dims()
	folds := kFold(n, opts.NFolds, opts.Seed)

	mse := make([]float64, len(path))
	for _, fold := range folds {
		Xtr := mat.NewDense(len(fold.train), p, nil)
		ytr := make([]float64, len(fold.train))
		for r, i := range fold.train {
			for j := 0; j < p; j++ {
				Xtr.Set(r, j, Xs.At(i, j))
			}
			ytr[r] = y[i]
		}

		b := make([]float64, p)
		for li, lam := range path {
			cdSolve(Xtr, ytr, b, lam, opts.Alpha, opts.MaxIter, opts.Tol)
			for _, i := range fold.val {
				pred := 0.0
				for j := 0; j < p; j++ {
					pred += Xs.At(i, j) * b[j]
				}
				d := y[i] - pred
				mse[li] += d * d
			}
		}
	}

	best := 0
	for li := range path {
		if mse[li] < mse[best] {
			best = li
		}
	}
	return path[best]
}

// cdSolve runs cyclic coordinate descent for the elastic net on
// standardized columns, updating b in place (warm start friendly).
func cdSolve(Xs *mat.Dense, y, b []float64, lambda, alpha float64, maxIter int, tol float64) {
	n, p := Xs.Dims()
	fn := float64(n)

	// Residual r = y - Xs*b.
	r := make([]float64, n)
	copy(r, y)
	for j := 0; j < p; j++ {
		if b[j] == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			r[i] -= Xs.At(i, j) * b[j]
		}
	}

	denom := 1 + lambda*(1-alpha)
	thresh := lambda * alpha

	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			oldB := b[j]
			rho := oldB
			for i := 0; i < n; i++ {
				rho += Xs.At(i, j) * r[i] / fn
			}
			newB := softThreshold(rho, thresh) / denom
			if newB != oldB {
				delta := newB - oldB
				for i := 0; i < n; i++ {
					r[i] -= Xs.At(i, j) * delta
				}
				b[j] = newB
				if d := math.Abs(delta); d > maxDelta {
					maxDelta = d
				}
			}
		}
		if maxDelta < tol {
			return
		}
	}
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}
