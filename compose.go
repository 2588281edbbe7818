package augsynth

import (
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
	"github.com/causalgo/augsynth/prognostic"
	"github.com/causalgo/augsynth/screen"
)

// fitProgSyn is the prognostic-score substitution estimator: fit the outcome
// model, then balance predicted post-period outcomes instead of raw
// pre-period outcomes. Z0 columns become predicted control outcomes and Z1
// the treated unit's predicted profile.
func fitProgSyn(ipw panel.IPWFormat, model prognostic.Model, fitter balance.Fitter) (*FitResult, error) {
	mfit, err := model.Fit(ipw.X, ipw.Y, ipw.Trt)
	if err != nil {
		return nil, err
	}

	ctrl := controlRows(ipw.Trt)
	trt := treatedRows(ipw.Trt)

	z0 := transposeRows(mfit.Y0Hat, ctrl)
	z1 := vecOf(colMeans(mfit.Y0Hat, trt))
	target, err := balance.NewTarget(z0, z1)
	if err != nil {
		return nil, err
	}
	wfit, err := fitter.Fit(target)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str(log.OperationKey, "augsynth.fitProgSyn").
		Int(log.ControlsKey, len(ctrl)).
		Msg("prognostic substitution fit complete")

	return &FitResult{FitResult: *wfit, OutParams: mfit.Params}, nil
}

// fitScreenSyn is the screening substitution estimator: balance only the
// screened covariate columns. The selection must be non-empty.
func fitScreenSyn(ipw panel.IPWFormat, sel *screen.Selection, fitter balance.Fitter) (*FitResult, error) {
	if sel.SelX == nil {
		return nil, errors.NewValueError("augsynth.fitScreenSyn", "screening selected no covariates")
	}

	ctrl := controlRows(ipw.Trt)
	trt := treatedRows(ipw.Trt)

	z0 := transposeRows(sel.SelX, ctrl)
	z1 := vecOf(colMeans(sel.SelX, trt))
	target, err := balance.NewTarget(z0, z1)
	if err != nil {
		return nil, err
	}
	wfit, err := fitter.Fit(target)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str(log.OperationKey, "augsynth.fitScreenSyn").
		Int(log.ControlsKey, len(ctrl)).
		Msg("screening substitution fit complete")

	res := &FitResult{FitResult: *wfit}
	res.ScreenParams = &sel.Params
	res.OutParams = prognostic.Params{Coef: sel.Params.Coef}
	return res, nil
}

// fitAugSyn is the augmented (doubly robust) estimator: weights come from
// the raw pre-period target, and the outcome model supplies predictions and
// residuals that the imputation step combines with them.
func fitAugSyn(ipw panel.IPWFormat, syn panel.SynthFormat, model prognostic.Model, fitter balance.Fitter) (*FitResult, error) {
	target, err := balance.NewTarget(syn.Synth.Z0, syn.Synth.Z1)
	if err != nil {
		return nil, err
	}
	wfit, err := fitter.Fit(target)
	if err != nil {
		return nil, err
	}

	mfit, err := model.Fit(ipw.X, ipw.Y, ipw.Trt)
	if err != nil {
		return nil, err
	}

	ctrl := controlRows(ipw.Trt)
	trt := treatedRows(ipw.Trt)
	nPost := len(syn.PostTimes)

	y0hatC := extractRows(mfit.Y0Hat, ctrl)
	resid := mat.NewDense(len(ctrl), nPost, nil)
	for c, i := range ctrl {
		for k := 0; k < nPost; k++ {
			resid.Set(c, k, ipw.Y.At(i, k)-y0hatC.At(c, k))
		}
	}

	y0hatT := colMeans(mfit.Y0Hat, trt)
	actualT := colMeans(ipw.Y, trt)
	tau := make([]float64, nPost)
	for k := range tau {
		tau[k] = actualT[k] - y0hatT[k]
	}

	log.Debug().
		Str(log.OperationKey, "augsynth.fitAugSyn").
		Int(log.ControlsKey, len(ctrl)).
		Int(log.PostPeriods, nPost).
		Msg("augmented fit complete")

	return &FitResult{
		FitResult: *wfit,
		OutParams: mfit.Params,
		Y0HatC:    y0hatC,
		Y0HatT:    y0hatT,
		Resid:     resid,
		TauHat:    tau,
		TreatOut:  meanOf(colMeans(ipw.X, trt)),
	}, nil
}

// fitGSynAug is the factor-augmented estimator: the factor model supplies
// counterfactuals, and the weights (when a fitter is given) balance the
// controls' pre-period factor residuals against the treated unit's. A nil
// fitter skips weighting entirely and leaves the weights at zero.
func fitGSynAug(ipw panel.IPWFormat, syn panel.SynthFormat, opts prognostic.GSYNOptions, fitter balance.Fitter) (*FitResult, error) {
	mfit, err := prognostic.FactorModel{Opts: opts}.Fit(ipw.X, ipw.Y, ipw.Trt)
	if err != nil {
		return nil, err
	}

	ctrl := controlRows(ipw.Trt)
	trt := treatedRows(ipw.Trt)
	nPre := len(syn.PreTimes)
	nPost := len(syn.PostTimes)
	nc := len(ctrl)

	cfFull := colMeansAll(mfit.Params.Y0HatT)

	var wfit *balance.FitResult
	if fitter == nil {
		wfit = &balance.FitResult{Weights: make([]float64, nc), Feasible: true}
	} else {
		z0 := mfit.Params.Resid.Slice(0, nPre, 0, nc).(*mat.Dense)
		z1 := mat.NewVecDense(nPre, nil)
		actualPre := colMeans(ipw.X, trt)
		for t := 0; t < nPre; t++ {
			z1.SetVec(t, actualPre[t]-cfFull[t])
		}
		target, err := balance.NewTarget(z0, z1)
		if err != nil {
			return nil, err
		}
		wfit, err = fitter.Fit(target)
		if err != nil {
			return nil, err
		}
	}

	// Post-period factor residuals per control, for the augmented
	// combination.
	resid := mat.NewDense(nc, nPost, nil)
	for c := 0; c < nc; c++ {
		for k := 0; k < nPost; k++ {
			resid.Set(c, k, mfit.Params.Resid.At(nPre+k, c))
		}
	}

	y0hatT := cfFull[nPre:]
	actualT := colMeans(ipw.Y, trt)
	tau := make([]float64, nPost)
	for k := range tau {
		tau[k] = actualT[k] - y0hatT[k]
	}

	log.Debug().
		Str(log.OperationKey, "augsynth.fitGSynAug").
		Int(log.RankKey, mfit.Params.Rank).
		Int(log.ControlsKey, nc).
		Msg("factor-augmented fit complete")

	return &FitResult{
		FitResult: *wfit,
		OutParams: mfit.Params,
		Y0HatC:    extractRows(mfit.Y0Hat, ctrl),
		Y0HatT:    y0hatT,
		Resid:     resid,
		TauHat:    tau,
		TreatOut:  meanOf(colMeans(ipw.X, trt)),
	}, nil
}

func controlRows(trt []bool) []int {
	idx := make([]int, 0, len(trt))
	for i, t := range trt {
		if !t {
			idx = append(idx, i)
		}
	}
	return idx
}

func treatedRows(trt []bool) []int {
	idx := make([]int, 0, 1)
	for i, t := range trt {
		if t {
			idx = append(idx, i)
		}
	}
	return idx
}

// colMeans averages the given rows of M column by column.
func colMeans(M *mat.Dense, rows []int) []float64 {
	_, cols := M.Dims()
	out := make([]float64, cols)
	for _, i := range rows {
		for j := 0; j < cols; j++ {
			out[j] += M.At(i, j)
		}
	}
	for j := range out {
		out[j] /= float64(len(rows))
	}
	return out
}

// colMeansAll averages every row of M column by column.
func colMeansAll(M *mat.Dense) []float64 {
	rows, _ := M.Dims()
	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}
	return colMeans(M, all)
}

// extractRows copies the given rows of M into a new matrix, preserving
// order.
func extractRows(M *mat.Dense, rows []int) *mat.Dense {
	_, cols := M.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for r, i := range rows {
		for j := 0; j < cols; j++ {
			out.Set(r, j, M.At(i, j))
		}
	}
	return out
}

// transposeRows copies the given rows of M into the columns of a new
// matrix, so each selected row becomes a balance-target column.
func transposeRows(M *mat.Dense, rows []int) *mat.Dense {
	_, cols := M.Dims()
	out := mat.NewDense(cols, len(rows), nil)
	for c, i := range rows {
		for j := 0; j < cols; j++ {
			out.Set(j, c, M.At(i, j))
		}
	}
	return out
}

func vecOf(v []float64) *mat.VecDense {
	return mat.NewVecDense(len(v), v)
}

func meanOf(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
