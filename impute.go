package augsynth

import (
	"github.com/causalgo/augsynth/panel"
)

// imputeWeighted assembles the result for the substitution estimators: the
// counterfactual is the weighted average of observed control post-period
// outcomes.
func imputeWeighted(ipw panel.IPWFormat, syn panel.SynthFormat, fit *FitResult) *Result {
	ctrl := controlRows(ipw.Trt)
	nPost := len(syn.PostTimes)

	cf := make([]float64, nPost)
	for k := 0; k < nPost; k++ {
		v := 0.0
		for c, i := range ctrl {
			v += fit.Weights[c] * ipw.Y.At(i, k)
		}
		cf[k] = v
	}
	return assemble(syn, fit, cf, nil)
}

// imputeAugmented assembles the result for the augmented estimators: the
// counterfactual is the model prediction plus the weighted average of
// control residuals, and the augmented effect is the treated actual minus
// that counterfactual.
func imputeAugmented(ipw panel.IPWFormat, syn panel.SynthFormat, fit *FitResult) *Result {
	trt := treatedRows(ipw.Trt)
	nPost := len(syn.PostTimes)

	cf := make([]float64, nPost)
	for k := 0; k < nPost; k++ {
		v := fit.Y0HatT[k]
		for c := range fit.Weights {
			v += fit.Weights[c] * fit.Resid.At(c, k)
		}
		cf[k] = v
	}

	actualT := colMeans(ipw.Y, trt)
	tauAug := make([]float64, nPost)
	for k := range tauAug {
		tauAug[k] = actualT[k] - cf[k]
	}
	return assemble(syn, fit, cf, tauAug)
}

// assemble builds the augmented panel: untreated-unit rows first, then the
// treated unit's original rows, then one synthesized counterfactual row per
// post-period tagged Synthetic="Y" and PotentialOutcome="Y(0)". No original
// row is dropped or duplicated.
func assemble(syn panel.SynthFormat, fit *FitResult, cf, tauAug []float64) *Result {
	out := make(panel.Panel, 0, len(syn.Outcomes)+len(syn.PostTimes))
	for _, r := range syn.Outcomes {
		if r.Unit != syn.TrtUnit {
			out = append(out, r)
		}
	}
	for _, r := range syn.Outcomes {
		if r.Unit == syn.TrtUnit {
			out = append(out, r)
		}
	}
	for k, tm := range syn.PostTimes {
		out = append(out, panel.Row{
			Unit:             syn.TrtUnit,
			Time:             tm,
			Outcome:          cf[k],
			Synthetic:        "Y",
			PotentialOutcome: "Y(0)",
		})
	}

	return &Result{
		Outcomes:  out,
		Weights:   fit.Weights,
		CtrlUnits: syn.CtrlUnits,
		Dual:      fit.Dual,
		OutParams: fit.OutParams,
		TauHatAug: tauAug,
		Fit:       fit,
	}
}
