// Package augsynth estimates the effect of an intervention on a single
// treated unit from panel data, using augmented synthetic control methods.
//
// The package composes two building blocks. Outcome models (package
// prognostic) predict what the treated unit's outcome would have been
// without treatment: a cross-validated elastic net, a random forest, or a
// latent factor model. Balancing weights (package balance) reweight the
// control units so their pre-treatment history matches the treated unit's:
// simplex-constrained synthetic control weights or entropy weights.
//
// Fit dispatches over a Config to one of four estimators:
//
//   - prognostic substitution: balance predicted outcomes instead of raw
//     pre-period outcomes, then take the weighted control average.
//   - screening substitution: balance only covariates a lasso screen
//     selects, optionally unioned with a dual-screen selection.
//   - augmented (doubly robust): weight raw pre-period outcomes and correct
//     the model prediction with weighted control residuals.
//   - factor-augmented: weight the factor model's pre-period residuals and
//     correct its counterfactual with weighted post-period residuals.
//
// A minimal call:
//
//	res, err := augsynth.Fit(p, augsynth.Config{
//		TrtUnit: "california",
//		Prog:    augsynth.ProgEN,
//		Weight:  augsynth.WeightSC,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.TauHatAug)
//
// The returned Result carries the input panel with a synthesized
// counterfactual series for the treated unit appended, the control weights,
// and the per-period effect estimates.
package augsynth
