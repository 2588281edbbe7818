// Package prognostic implements the outcome-model backends that predict
// control outcomes from pre-treatment covariates: a cross-validated elastic
// net, a random forest, and a latent factor model. All backends share one
// contract so the composition layer can swap them freely.
package prognostic

import (
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/pkg/errors"
)

// Params carries the fitted model parameters. Which fields are populated
// depends on the backend.
type Params struct {
	// Coef holds per-post-period coefficient vectors (intercept first) for
	// the elastic net.
	Coef [][]float64

	// Lambdas records the cross-validated penalty each elastic net column
	// fit was refit at, one per post-period (one entry in avg mode).
	Lambdas []float64

	// Importances holds feature importances for the random forest,
	// concatenated across post-periods.
	Importances []float64

	// Resid is the factor model's residual matrix, periods x controls over
	// the full pre+post window. Retained for residual balancing.
	Resid *mat.Dense

	// Y0HatT is the factor model's counterfactual for the treated units,
	// treated-units x periods over the full window.
	Y0HatT *mat.Dense

	// Rank is the selected factor rank.
	Rank int
}

// Fit is the common backend output: predicted control outcomes for all
// units (control and treated) over the post-periods, plus parameters.
type Fit struct {
	Y0Hat  *mat.Dense
	Params Params
}

// Model is the outcome-model contract. X holds pre-treatment covariates
// (units x features), Y post-period outcomes (units x post-periods), and
// trt flags treated rows, which are excluded from fitting but predicted.
type Model interface {
	Fit(X, Y *mat.Dense, trt []bool) (*Fit, error)
}

func validateInputs(op string, X, Y *mat.Dense, trt []bool) (n, p, nPost int, err error) {
	if X == nil || Y == nil {
		return 0, 0, 0, errors.Wrap(errors.ErrEmptyData, op)
	}
	n, p = X.Dims()
	ny, nPost := Y.Dims()
	if n == 0 || p == 0 {
		return 0, 0, 0, errors.Wrap(errors.ErrEmptyData, op)
	}
	if ny != n {
		return 0, 0, 0, errors.NewDimensionError(op, n, ny, 0)
	}
	if len(trt) != n {
		return 0, 0, 0, errors.NewDimensionError(op, n, len(trt), 0)
	}
	return n, p, nPost, nil
}

func controlIndices(trt []bool) []int {
	idx := make([]int, 0, len(trt))
	for i, t := range trt {
		if !t {
			idx = append(idx, i)
		}
	}
	return idx
}

// stackControls builds the stacked design for avg mode: each control row of
// X repeated once per post-period, with the matching outcome column entries
// stacked into one response vector.
func stackControls(X, Y *mat.Dense, ctrl []int) (*mat.Dense, []float64) {
	_, p := X.Dims()
	_, nPost := Y.Dims()
	Xs := mat.NewDense(len(ctrl)*nPost, p, nil)
	ys := make([]float64, len(ctrl)*nPost)
	row := 0
	for _, i := range ctrl {
		for k := 0; k < nPost; k++ {
			for j := 0; j < p; j++ {
				Xs.Set(row, j, X.At(i, j))
			}
			ys[row] = Y.At(i, k)
			row++
		}
	}
	return Xs, ys
}
