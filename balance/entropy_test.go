package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEntropyExactBalance(t *testing.T) {
	// Treated profile inside the convex hull of the controls: exact balance
	// (eps = 0) is attainable and the fit must report feasibility.
	z0 := mat.NewDense(2, 3, []float64{
		0, 1, 2,
		2, 1, 0,
	})
	z1 := mat.NewVecDense(2, []float64{1, 1})

	tgt, err := NewTarget(z0, z1)
	require.NoError(t, err)

	fit, err := Entropy{Opts: ENTOptions{FeasTol: 1e-4}}.Fit(tgt)
	require.NoError(t, err)

	assert.True(t, fit.Feasible)
	assert.Len(t, fit.Dual, 2)
	assert.Len(t, fit.Weights, 3)

	sum := 0.0
	for _, wi := range fit.Weights {
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-10)

	gap := tgt.Imbalance(fit.Weights)
	for j, g := range gap {
		assert.InDelta(t, 0.0, g, 1e-3, "feature %d", j)
	}
}

func TestEntropyInfeasibleTarget(t *testing.T) {
	// Treated profile far outside the convex hull: no weight vector on the
	// simplex can balance it within a tight radius.
	z0 := mat.NewDense(2, 3, []float64{
		0, 1, 2,
		0, 1, 2,
	})
	z1 := mat.NewVecDense(2, []float64{100, -100})

	tgt, err := NewTarget(z0, z1)
	require.NoError(t, err)

	fit, err := Entropy{Opts: ENTOptions{Eps: 0.01, MaxIter: 50}}.Fit(tgt)
	require.NoError(t, err)
	assert.False(t, fit.Feasible)
}

func TestEntropyEpsRecorded(t *testing.T) {
	z0 := mat.NewDense(1, 2, []float64{1, 3})
	z1 := mat.NewVecDense(1, []float64{2})

	tgt, err := NewTarget(z0, z1)
	require.NoError(t, err)

	fit, err := Entropy{Opts: ENTOptions{Eps: 0.25}}.Fit(tgt)
	require.NoError(t, err)
	require.Len(t, fit.Eta, 1)
	assert.Equal(t, 0.25, fit.Eta[0])
}
