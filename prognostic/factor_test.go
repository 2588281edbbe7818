package prognostic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// rankOnePanel builds a panel following an exact interactive fixed-effects
// structure: outcome = mu + unit effect + time effect + f_t * loading_i.
// The last unit is treated, with a constant additive effect added to its
// observed post-period outcomes.
func rankOnePanel(nCtrl, nPre, nPost int, effect float64) (*mat.Dense, *mat.Dense, []bool, []float64) {
	n := nCtrl + 1
	T := nPre + nPost
	X := mat.NewDense(n, nPre, nil)
	Y := mat.NewDense(n, nPost, nil)
	trt := make([]bool, n)
	trt[n-1] = true

	factor := make([]float64, T)
	for t := 0; t < T; t++ {
		factor[t] = math.Sin(float64(t)) * 2
	}

	value := func(i, t int) float64 {
		loading := 0.5 + 0.3*float64(i)
		return 5 + float64(i) + 0.2*float64(t) + factor[t]*loading
	}

	cf := make([]float64, nPost)
	for i := 0; i < n; i++ {
		for t := 0; t < nPre; t++ {
			X.Set(i, t, value(i, t))
		}
		for k := 0; k < nPost; k++ {
			v := value(i, nPre+k)
			if trt[i] {
				cf[k] = v
				v += effect
			}
			Y.Set(i, k, v)
		}
	}
	return X, Y, trt, cf
}

func TestFactorModelRecoversCounterfactual(t *testing.T) {
	X, Y, trt, cf := rankOnePanel(6, 8, 3, 5)

	fit, err := FactorModel{}.Fit(X, Y, trt)
	require.NoError(t, err)

	// Treated counterfactual tracks the untreated structural value, not
	// the observed (effect-shifted) outcome.
	for k := 0; k < 3; k++ {
		assert.InDelta(t, cf[k], fit.Y0Hat.At(6, k), 1e-3, "post period %d", k)
	}
}

func TestFactorModelControlsGetObservedOutcomes(t *testing.T) {
	X, Y, trt, _ := rankOnePanel(5, 6, 2, 3)

	fit, err := FactorModel{}.Fit(X, Y, trt)
	require.NoError(t, err)

	// For controls, residual + fitted reproduces the observed outcome.
	for i := 0; i < 5; i++ {
		for k := 0; k < 2; k++ {
			assert.InDelta(t, Y.At(i, k), fit.Y0Hat.At(i, k), 1e-8)
		}
	}
}

func TestFactorModelIgnoresTreatedPostOutcomes(t *testing.T) {
	X, Y, trt, _ := rankOnePanel(6, 8, 3, 5)

	fit, err := FactorModel{}.Fit(X, Y, trt)
	require.NoError(t, err)

	// Shifting the treated unit's observed post outcomes must not move the
	// counterfactual: estimation draws on control columns only.
	Y2 := mat.DenseCopyOf(Y)
	for k := 0; k < 3; k++ {
		Y2.Set(6, k, Y.At(6, k)+1000)
	}
	fit2, err := FactorModel{}.Fit(X, Y2, trt)
	require.NoError(t, err)

	for k := 0; k < 3; k++ {
		assert.InDelta(t, fit.Y0Hat.At(6, k), fit2.Y0Hat.At(6, k), 1e-9, "post period %d", k)
	}
}

func TestFactorModelParamsShapes(t *testing.T) {
	X, Y, trt, _ := rankOnePanel(5, 6, 2, 3)

	fit, err := FactorModel{}.Fit(X, Y, trt)
	require.NoError(t, err)

	r, c := fit.Params.Resid.Dims()
	assert.Equal(t, 8, r) // full pre+post window
	assert.Equal(t, 5, c) // one column per control

	rt, ct := fit.Params.Y0HatT.Dims()
	assert.Equal(t, 1, rt)
	assert.Equal(t, 8, ct)

	assert.GreaterOrEqual(t, fit.Params.Rank, 0)
	assert.LessOrEqual(t, fit.Params.Rank, 5)
}

func TestFactorModelNeedsPrePeriods(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	Y := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	trt := []bool{false, false, false, true}

	_, err := FactorModel{}.Fit(X, Y, trt)
	assert.Error(t, err)
}
