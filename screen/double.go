package screen

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// Double runs the double screen: the regression screen unioned with an
// entropy-dual selection. The dual selection entropy-balances all pre
// covariates under an L-inf radius eps, where eps is calibrated by binary
// search to the smallest feasible value in [MinEps, 2*max|X|]. An exhausted
// search is a hard failure: the whole estimation aborts with an
// InfeasibleError. The returned selection is always a superset of the
// single screen's.
func Double(ipw panel.IPWFormat, syn panel.SynthFormat, opts Options) (*Selection, error) {
	opts.defaults()

	single, err := Single(ipw, syn, opts)
	if err != nil {
		return nil, err
	}

	n, p := ipw.X.Dims()

	// Balance target over the raw covariates: one column per control, the
	// treated unit's covariate profile on the other side.
	nCtrl := ipw.NControls()
	z0 := mat.NewDense(p, nCtrl, nil)
	z1 := mat.NewVecDense(p, nil)
	col := 0
	nTrt := 0
	for i := 0; i < n; i++ {
		if ipw.Trt[i] {
			nTrt++
			for j := 0; j < p; j++ {
				z1.SetVec(j, z1.AtVec(j)+ipw.X.At(i, j))
			}
			continue
		}
		for j := 0; j < p; j++ {
			z0.Set(j, col, ipw.X.At(i, j))
		}
		col++
	}
	if nTrt == 0 {
		return nil, errors.NewValueError("screen.Double", "no treated unit")
	}
	for j := 0; j < p; j++ {
		z1.SetVec(j, z1.AtVec(j)/float64(nTrt))
	}
	target, err := balance.NewTarget(z0, z1)
	if err != nil {
		return nil, err
	}

	maxAbs := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if a := math.Abs(ipw.X.At(i, j)); a > maxAbs {
				maxAbs = a
			}
		}
	}
	hi := 2 * maxAbs
	lo := opts.MinEps
	if lo <= 0 {
		lo = hi / 200
	}
	by := opts.By
	if by <= 0 {
		by = hi / 100
	}

	feas := func(eps float64) (bool, error) {
		entOpts := opts.ENT
		entOpts.Eps = eps
		fit, err := balance.Entropy{Opts: entOpts}.Fit(target)
		if err != nil {
			return false, err
		}
		return fit.Feasible, nil
	}

	eps, err := SearchMin(lo, hi, by, feas)
	if err != nil {
		return nil, err
	}
	if eps == NotFound {
		return nil, errors.NewInfeasibleError("screen.Double", lo, hi, by)
	}

	entOpts := opts.ENT
	entOpts.Eps = eps
	fit, err := balance.Entropy{Opts: entOpts}.Fit(target)
	if err != nil {
		return nil, err
	}

	dualSelected := make([]float64, p)
	selected := make([]float64, p)
	copy(selected, single.Params.Selected)
	cols := make([]int, 0, p)
	for j := 0; j < p; j++ {
		if math.Abs(fit.Dual[j]) > opts.DualTol {
			dualSelected[j] = 1
			selected[j] = 1
		}
		if selected[j] == 1 {
			cols = append(cols, j)
		}
	}

	log.Debug().
		Str(log.OperationKey, "screen.Double").
		Float64(log.EpsilonKey, eps).
		Int("n_selected", len(cols)).
		Msg("double screen complete")

	return &Selection{
		SelX: subColumns(ipw.X, cols),
		Cols: cols,
		Params: Params{
			Coef:         single.Params.Coef,
			Selected:     selected,
			Dual:         fit.Dual,
			DualSelected: dualSelected,
			Eps:          eps,
		},
	}, nil
}
