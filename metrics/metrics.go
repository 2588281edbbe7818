// Package metrics computes fit and effect diagnostics for estimation
// results: pre-period balance quality, per-period and average treatment
// effects, and jackknife standard errors over the control units.
package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth"
	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/pkg/errors"
)

// MSE computes the mean squared error between two vectors.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE computes the root mean squared error between two vectors.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// L2Imbalance is the scaled euclidean norm of the per-feature balance gaps
// left by the weights.
func L2Imbalance(t balance.Target, w []float64) (float64, error) {
	feat, ctrl := t.Dims()
	if len(w) != ctrl {
		return 0, errors.NewDimensionError("L2Imbalance", ctrl, len(w), 0)
	}
	gaps := t.Imbalance(w)
	sum := 0.0
	for _, g := range gaps {
		sum += g * g
	}
	return math.Sqrt(sum / float64(feat)), nil
}

// LinfImbalance is the worst single-feature balance gap left by the weights.
func LinfImbalance(t balance.Target, w []float64) (float64, error) {
	_, ctrl := t.Dims()
	if len(w) != ctrl {
		return 0, errors.NewDimensionError("LinfImbalance", ctrl, len(w), 0)
	}
	worst := 0.0
	for _, g := range t.Imbalance(w) {
		if a := math.Abs(g); a > worst {
			worst = a
		}
	}
	return worst, nil
}

// Effects extracts the per-post-period treatment effect from a result:
// treated actual minus the synthesized counterfactual, aligned by period.
// It works uniformly across the substitution and augmented estimators.
func Effects(res *augsynth.Result) ([]float64, error) {
	if res == nil || len(res.Outcomes) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "metrics.Effects")
	}
	var trtUnit string
	cf := make(map[float64]float64)
	for _, r := range res.Outcomes {
		if r.Synthetic == "Y" {
			trtUnit = r.Unit
			cf[r.Time] = r.Outcome
		}
	}
	if len(cf) == 0 {
		return nil, errors.NewValueError("metrics.Effects", "result has no synthesized rows")
	}

	times := make([]float64, 0, len(cf))
	actual := make(map[float64]float64, len(cf))
	for _, r := range res.Outcomes {
		if r.Unit != trtUnit || r.Synthetic == "Y" {
			continue
		}
		if _, ok := cf[r.Time]; ok {
			actual[r.Time] = r.Outcome
			times = append(times, r.Time)
		}
	}
	sort.Float64s(times)

	tau := make([]float64, len(times))
	for k, tm := range times {
		tau[k] = actual[tm] - cf[tm]
	}
	return tau, nil
}

// ATT averages the per-period effects into a single average treatment
// effect on the treated.
func ATT(res *augsynth.Result) (float64, error) {
	tau, err := Effects(res)
	if err != nil {
		return 0, err
	}
	att, err := stats.Mean(stats.Float64Data(tau))
	if err != nil {
		return 0, errors.Wrap(err, "metrics.ATT")
	}
	return att, nil
}
