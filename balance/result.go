package balance

// FitResult is the base optimization result returned by a weight fitter.
// Composition functions layer outcome-model diagnostics on top of it; the
// fitters themselves fill only the fields below.
type FitResult struct {
	// Weights over control units, aligned with the target's Z0 columns.
	// Nonnegative and summing to one for the synthetic control fitter;
	// softmax weights for the entropy fitter.
	Weights []float64

	// Dual holds the dual/balance coefficients: the per-feature balance
	// gaps for the synthetic control QP, the dual vector theta for the
	// entropy problem. One entry per balance feature.
	Dual []float64

	// PrimalObj is the attained primal objective: half squared imbalance for
	// the synthetic control fitter, KL divergence from uniform for entropy.
	PrimalObj float64

	// ScaledPrimalObj rescales PrimalObj to an interpretable per-feature
	// magnitude: root mean square imbalance for synthetic control, maximum
	// absolute imbalance for entropy.
	ScaledPrimalObj float64

	// PrimalGroupObj carries per-group objectives for stratified problems;
	// nil in the single-treated-unit setting.
	PrimalGroupObj []float64

	// Feasible reports whether the balancing problem attained a solution
	// within its tolerance.
	Feasible bool

	// PScores and Groups are reserved for stratified/propensity variants;
	// nil here.
	PScores []float64
	Groups  []int

	// Eta records the regularization level the fit was run at (the L-inf
	// radius epsilon for entropy balancing).
	Eta []float64
}
