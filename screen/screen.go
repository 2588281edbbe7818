package screen

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
	"github.com/causalgo/augsynth/prognostic"
)

// Options configures the covariate screens.
type Options struct {
	// Alpha is the elastic net mixing for the regression screen.
	// Default 0.25.
	Alpha float64
	// Avg stacks post-periods into one screening regression.
	Avg bool

	// MinEps is the lower end of the tolerance search for the double
	// screen. Defaults to hi/200 where hi = 2*max|X|.
	MinEps float64
	// By is the tolerance search step. Defaults to hi/100.
	By float64
	// DualTol is the threshold below which a dual coefficient counts as
	// zero. Default 1e-6.
	DualTol float64

	// ENT tunes the entropy solver used for feasibility probes.
	ENT balance.ENTOptions
}

func (o *Options) defaults() {
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = 0.25
	}
	if o.DualTol <= 0 {
		o.DualTol = 1e-6
	}
}

// Params carries the screening metadata: the raw screening coefficients,
// the 0/1 selection indicators, and for the double screen the dual vector
// and the calibrated tolerance.
type Params struct {
	Coef         [][]float64
	Selected     []float64
	Dual         []float64
	DualSelected []float64
	Eps          float64
}

// Selection is the screening output: the covariate submatrix restricted to
// the selected columns, the original column indices, and the metadata.
type Selection struct {
	SelX   *mat.Dense
	Cols   []int
	Params Params
}

// Single runs the regression screen: an elastic net (no intercept) of the
// post outcome(s) on the pre covariates over control rows. A covariate is
// selected iff the sum of its absolute coefficients across the fitted
// models is strictly positive.
func Single(ipw panel.IPWFormat, _ panel.SynthFormat, opts Options) (*Selection, error) {
	opts.defaults()

	if err := ipw.Validate(); err != nil {
		return nil, err
	}
	_, p := ipw.X.Dims()

	en := prognostic.ElasticNet{Opts: prognostic.ENOptions{
		Alpha:       opts.Alpha,
		NoIntercept: true,
		Avg:         opts.Avg,
	}}
	fit, err := en.Fit(ipw.X, ipw.Y, ipw.Trt)
	if err != nil {
		return nil, errors.Wrap(err, "screen.Single")
	}

	selected := make([]float64, p)
	cols := make([]int, 0, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for _, coef := range fit.Params.Coef {
			sum += math.Abs(coef[j+1])
		}
		if sum > 0 {
			selected[j] = 1
			cols = append(cols, j)
		}
	}

	log.Debug().
		Str(log.OperationKey, "screen.Single").
		Int("n_covariates", p).
		Int("n_selected", len(cols)).
		Msg("regression screen complete")

	return &Selection{
		SelX: subColumns(ipw.X, cols),
		Cols: cols,
		Params: Params{
			Coef:     fit.Params.Coef,
			Selected: selected,
		},
	}, nil
}

// subColumns extracts the listed columns of X. An empty selection yields a
// nil matrix.
func subColumns(X *mat.Dense, cols []int) *mat.Dense {
	if len(cols) == 0 {
		return nil
	}
	n, _ := X.Dims()
	sel := mat.NewDense(n, len(cols), nil)
	for c, j := range cols {
		for i := 0; i < n; i++ {
			sel.Set(i, c, X.At(i, j))
		}
	}
	return sel
}
