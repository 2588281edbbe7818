package augsynth

import (
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/prognostic"
	"github.com/causalgo/augsynth/screen"
)

// FitResult is the full fit diagnostics bundle: the weight fitter's base
// result with outcome-model and screening fields layered on top by the
// composition functions.
type FitResult struct {
	balance.FitResult

	// OutParams carries the fitted outcome-model parameters.
	OutParams prognostic.Params

	// ScreenParams carries the covariate-screening metadata when a screen
	// ran; nil otherwise.
	ScreenParams *screen.Params

	// Y0HatC holds predicted control outcomes (controls x post-periods)
	// on the augmented paths.
	Y0HatC *mat.Dense

	// Y0HatT holds the treated unit's predicted (counterfactual) outcome
	// per post-period on the augmented paths.
	Y0HatT []float64

	// Resid holds the control residuals used by the augmented combination
	// (controls x post-periods): actual minus predicted for the regression
	// and forest models, the factor model's own residuals on the factor
	// path.
	Resid *mat.Dense

	// TauHat is the raw treatment-effect signal per post-period: treated
	// actual minus treated predicted.
	TauHat []float64

	// TreatOut is the treated unit's pre-period average outcome.
	TreatOut float64
}

// Result is the output of an estimation call: the augmented panel plus the
// diagnostics bundle.
type Result struct {
	// Outcomes is the input panel with the synthesized counterfactual
	// block for the treated unit appended. Synthesized rows carry
	// Synthetic="Y" and PotentialOutcome="Y(0)".
	Outcomes panel.Panel

	// Weights are the fitted control-unit weights, aligned with CtrlUnits.
	Weights []float64

	// CtrlUnits names the control units the weights refer to.
	CtrlUnits []string

	// Dual holds the weight fitter's dual/balance coefficients.
	Dual []float64

	// OutParams carries the outcome-model or screening parameters.
	OutParams prognostic.Params

	// TauHatAug is the augmented treatment-effect estimate per
	// post-period; nil on the pure substitution paths.
	TauHatAug []float64

	// Fit exposes the complete layered fit diagnostics.
	Fit *FitResult
}
