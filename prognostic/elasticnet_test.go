package prognostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearData builds n units with p covariates and a noiseless linear
// response y = 1 + 2*x0 - x1 per post-period. The last unit is treated.
func linearData(n, p, nPost int) (*mat.Dense, *mat.Dense, []bool) {
	X := mat.NewDense(n, p, nil)
	Y := mat.NewDense(n, nPost, nil)
	trt := make([]bool, n)
	trt[n-1] = true
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, float64((i*7+j*3)%11)/2)
		}
		base := 1 + 2*X.At(i, 0) - X.At(i, 1)
		for k := 0; k < nPost; k++ {
			Y.Set(i, k, base+0.1*float64(k))
		}
	}
	return X, Y, trt
}

func TestElasticNetRecoversLinearSignal(t *testing.T) {
	X, Y, trt := linearData(20, 3, 2)

	fit, err := ElasticNet{}.Fit(X, Y, trt)
	require.NoError(t, err)

	r, c := fit.Y0Hat.Dims()
	assert.Equal(t, 20, r)
	assert.Equal(t, 2, c)

	// Noiseless response: CV picks a small penalty and predictions track
	// the linear signal, including for the held-out treated unit.
	for i := 0; i < 20; i++ {
		for k := 0; k < 2; k++ {
			assert.InDelta(t, Y.At(i, k), fit.Y0Hat.At(i, k), 0.5, "unit %d period %d", i, k)
		}
	}

	require.Len(t, fit.Params.Coef, 2)
	assert.Len(t, fit.Params.Coef[0], 4) // intercept + 3 features
	require.Len(t, fit.Params.Lambdas, 2)
}

func TestElasticNetAvgMode(t *testing.T) {
	X, Y, trt := linearData(15, 2, 3)

	fit, err := ElasticNet{Opts: ENOptions{Avg: true}}.Fit(X, Y, trt)
	require.NoError(t, err)

	// Stacked fit produces one model: identical predictions per period.
	r, c := fit.Y0Hat.Dims()
	require.Equal(t, 15, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.Equal(t, fit.Y0Hat.At(i, 0), fit.Y0Hat.At(i, 1))
		assert.Equal(t, fit.Y0Hat.At(i, 0), fit.Y0Hat.At(i, 2))
	}
	assert.Len(t, fit.Params.Coef, 1)
}

func TestElasticNetNoIntercept(t *testing.T) {
	X, Y, trt := linearData(12, 2, 1)

	fit, err := ElasticNet{Opts: ENOptions{NoIntercept: true, Alpha: 0.25}}.Fit(X, Y, trt)
	require.NoError(t, err)
	require.Len(t, fit.Params.Coef, 1)
	assert.Equal(t, 0.0, fit.Params.Coef[0][0])
}

func TestElasticNetConstantResponse(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	Y := mat.NewDense(6, 1, []float64{3, 3, 3, 3, 3, 3})
	trt := []bool{false, false, false, false, false, true}

	fit, err := ElasticNet{}.Fit(X, Y, trt)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, 3.0, fit.Y0Hat.At(i, 0), 1e-10)
	}
}

func TestElasticNetValidation(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	Y := mat.NewDense(3, 1, []float64{1, 2, 3})

	_, err := ElasticNet{}.Fit(X, Y, []bool{true, false})
	assert.Error(t, err, "trt length mismatch")

	_, err = ElasticNet{}.Fit(X, mat.NewDense(2, 1, []float64{1, 2}), []bool{true, false, false})
	assert.Error(t, err, "row mismatch between X and Y")

	_, err = ElasticNet{}.Fit(X, Y, []bool{true, true, false})
	assert.Error(t, err, "fewer than two controls")
}

func TestKFoldCoversAllSamples(t *testing.T) {
	folds := kFold(13, 5, 7)
	require.Len(t, folds, 5)

	seen := make(map[int]int)
	for _, f := range folds {
		for _, i := range f.val {
			seen[i]++
		}
		assert.Equal(t, 13, len(f.train)+len(f.val))
	}
	assert.Len(t, seen, 13)
	for i, count := range seen {
		assert.Equal(t, 1, count, "sample %d", i)
	}
}
