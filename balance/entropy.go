package balance

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// ENTOptions configures the maximum-entropy weight fitter.
type ENTOptions struct {
	// Eps is the L-inf imbalance radius: weights may miss each balance
	// feature by at most Eps. Default 0 (exact balance).
	Eps float64
	// MaxIter bounds the dual solver's major iterations. Default 500.
	MaxIter int
	// Tol is the gradient-norm stopping tolerance. Default 1e-8.
	Tol float64
	// FeasTol is the slack allowed when declaring the primal feasible.
	// Default 1e-6.
	FeasTol float64
	// mu smooths the l1 penalty so the dual stays differentiable.
	Mu float64
}

func (o *ENTOptions) defaults() {
	if o.MaxIter <= 0 {
		o.MaxIter = 500
	}
	if o.Tol <= 0 {
		o.Tol = 1e-8
	}
	if o.FeasTol <= 0 {
		o.FeasTol = 1e-6
	}
	if o.Mu <= 0 {
		o.Mu = 1e-8
	}
}

// Entropy fits maximum-entropy balancing weights through the dual problem
//
//	min_theta  log sum_i exp(theta'z_i) - theta'z1 + eps*||theta||_1
//
// where the l1 term is the dual of the L-inf primal imbalance radius eps.
// The penalty is smoothed with sqrt(t^2+mu^2) and the dual minimized with
// L-BFGS; primal weights are recovered as the softmax of theta'z_i.
type Entropy struct {
	Opts ENTOptions
}

// Fit solves the dual and recovers the weights. Feasible reports whether
// the recovered weights attain the requested L-inf radius.
func (e Entropy) Fit(t Target) (*FitResult, error) {
	opts := e.Opts
	opts.defaults()

	nFeat, nCtrl := t.Dims()
	if nCtrl == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Entropy.Fit")
	}

	z0 := t.Z0()
	z1 := t.Z1()

	// scores_i = theta' z_i for each control column i.
	scores := func(theta []float64) []float64 {
		s := make([]float64, nCtrl)
		for i := 0; i < nCtrl; i++ {
			v := 0.0
			for j := 0; j < nFeat; j++ {
				v += theta[j] * z0.At(j, i)
			}
			s[i] = v
		}
		return s
	}

	logSumExp := func(s []float64) float64 {
		m := floats.Max(s)
		sum := 0.0
		for _, v := range s {
			sum += math.Exp(v - m)
		}
		return m + math.Log(sum)
	}

	softmax := func(s []float64) []float64 {
		m := floats.Max(s)
		w := make([]float64, len(s))
		sum := 0.0
		for i, v := range s {
			w[i] = math.Exp(v - m)
			sum += w[i]
		}
		floats.Scale(1/sum, w)
		return w
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			s := scores(theta)
			f := logSumExp(s)
			for j := 0; j < nFeat; j++ {
				f -= theta[j] * z1.AtVec(j)
				f += opts.Eps * math.Sqrt(theta[j]*theta[j]+opts.Mu*opts.Mu)
			}
			return f
		},
		Grad: func(grad, theta []float64) {
			w := softmax(scores(theta))
			for j := 0; j < nFeat; j++ {
				g := -z1.AtVec(j)
				for i := 0; i < nCtrl; i++ {
					g += w[i] * z0.At(j, i)
				}
				g += opts.Eps * theta[j] / math.Sqrt(theta[j]*theta[j]+opts.Mu*opts.Mu)
				grad[j] = g
			}
		},
	}

	theta0 := make([]float64, nFeat)
	settings := &optimize.Settings{
		GradientThreshold: opts.Tol,
		MajorIterations:   opts.MaxIter,
	}

	res, err := optimize.Minimize(problem, theta0, settings, &optimize.LBFGS{})
	if err != nil && res == nil {
		return nil, errors.Wrap(err, "Entropy.Fit: dual solve failed")
	}
	if err != nil || res.Status == optimize.IterationLimit {
		msg := "iteration limit"
		if err != nil {
			msg = err.Error()
		}
		warn := errors.NewConvergenceWarning("Entropy.LBFGS", opts.MaxIter, msg)
		errors.Warn(warn)
		log.Warn().Object("warning", warn).Msg("entropy dual returned before convergence")
	}

	theta := res.Location.X
	w := softmax(scores(theta))

	gap := t.Imbalance(w)
	linf := 0.0
	for _, g := range gap {
		if a := math.Abs(g); a > linf {
			linf = a
		}
	}
	feasible := linf <= opts.Eps+opts.FeasTol

	// KL divergence of the recovered weights from uniform.
	kl := 0.0
	for _, wi := range w {
		if wi > 0 {
			kl += wi * math.Log(wi*float64(nCtrl))
		}
	}

	log.Debug().
		Str(log.OperationKey, "Entropy.Fit").
		Int(log.ControlsKey, nCtrl).
		Int("n_features", nFeat).
		Float64(log.EpsilonKey, opts.Eps).
		Float64("linf_imbalance", linf).
		Bool("feasible", feasible).
		Msg("entropy balancing fit complete")

	dual := make([]float64, nFeat)
	copy(dual, theta)

	return &FitResult{
		Weights:         w,
		Dual:            dual,
		PrimalObj:       kl,
		ScaledPrimalObj: linf,
		Feasible:        feasible,
		Eta:             []float64{opts.Eps},
	}, nil
}
