package augsynth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
)

// makeTestPanel builds a balanced panel with nCtrl control units on parallel
// linear trends and one treated unit sitting at the exact centroid of the
// controls, with a constant additive effect of 2 in the post-period. The
// centroid placement makes every weight fitter's job feasible and pins the
// true counterfactual analytically.
func makeTestPanel(nCtrl, nPre, nPost int) panel.Panel {
	var p panel.Panel
	T := nPre + nPost
	for i := 0; i < nCtrl; i++ {
		unit := fmt.Sprintf("c%02d", i)
		for t := 1; t <= T; t++ {
			p = append(p, panel.Row{
				Unit:    unit,
				Time:    float64(t),
				Outcome: float64(i) + 0.5*float64(t),
			})
		}
	}
	centroid := float64(nCtrl-1) / 2
	for t := 1; t <= T; t++ {
		out := centroid + 0.5*float64(t)
		treated := t > nPre
		if treated {
			out += 2
		}
		p = append(p, panel.Row{
			Unit:    "trt",
			Time:    float64(t),
			Outcome: out,
			Treated: treated,
		})
	}
	return p
}

func TestFitAugmentedENSC(t *testing.T) {
	p := makeTestPanel(10, 5, 3)
	res, err := Fit(p, Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightSC})
	require.NoError(t, err)

	// 11 units x 8 periods plus 3 synthesized counterfactual rows.
	assert.Len(t, res.Outcomes, 91)
	assert.Len(t, res.Weights, 10)
	assert.Len(t, res.CtrlUnits, 10)

	sum := 0.0
	for _, w := range res.Weights {
		assert.GreaterOrEqual(t, w, -1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	require.Len(t, res.Fit.TauHat, 3)
	require.Len(t, res.TauHatAug, 3)
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 2.0, res.Fit.TauHat[k], 0.25)
		assert.InDelta(t, 2.0, res.TauHatAug[k], 0.25)
	}

	synth := res.Outcomes[len(res.Outcomes)-3:]
	for k, r := range synth {
		assert.Equal(t, "trt", r.Unit)
		assert.Equal(t, "Y", r.Synthetic)
		assert.Equal(t, "Y(0)", r.PotentialOutcome)
		assert.Equal(t, float64(6+k), r.Time)
		// True counterfactual is centroid + trend, without the effect.
		assert.InDelta(t, 4.5+0.5*float64(6+k), r.Outcome, 0.25)
	}
}

func TestFitStrategyMatrix(t *testing.T) {
	p := makeTestPanel(10, 5, 3)
	ent := balance.ENTOptions{Eps: 0.05}
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "en sc", cfg: Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightSC}},
		{name: "en ent", cfg: Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightENT, ENT: ent}},
		{name: "en sc substitute", cfg: Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightSC, Substitute: true}},
		{name: "rf sc", cfg: Config{TrtUnit: "trt", Prog: ProgRF, Weight: WeightSC}},
		{name: "rf ent substitute", cfg: Config{TrtUnit: "trt", Prog: ProgRF, Weight: WeightENT, ENT: ent, Substitute: true}},
		{name: "gsyn sc", cfg: Config{TrtUnit: "trt", Prog: ProgGSYN, Weight: WeightSC}},
		{name: "gsyn ent", cfg: Config{TrtUnit: "trt", Prog: ProgGSYN, Weight: WeightENT, ENT: ent}},
		{name: "gsyn none", cfg: Config{TrtUnit: "trt", Prog: ProgGSYN, Weight: WeightNone}},
		{name: "screen las sc", cfg: Config{TrtUnit: "trt", Screen: ScreenLasso, Weight: WeightSC}},
		{name: "screen double sc", cfg: Config{TrtUnit: "trt", Screen: ScreenDouble, Weight: WeightSC}},
		{name: "screen double alias", cfg: Config{TrtUnit: "trt", Screen: "2", Weight: WeightSC}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Fit(p, tt.cfg)
			require.NoError(t, err)
			assert.Len(t, res.Outcomes, 91)
			assert.Len(t, res.Weights, 10)

			nSynth := 0
			for _, r := range res.Outcomes {
				if r.Synthetic == "Y" {
					nSynth++
					assert.Equal(t, "trt", r.Unit)
					assert.Equal(t, "Y(0)", r.PotentialOutcome)
				} else {
					assert.Empty(t, r.PotentialOutcome)
				}
			}
			assert.Equal(t, 3, nSynth)
		})
	}
}

func TestFitSubstitutionCounterfactual(t *testing.T) {
	p := makeTestPanel(8, 5, 3)
	res, err := Fit(p, Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightSC, Substitute: true})
	require.NoError(t, err)

	// Pure substitution: no augmented effect series, and the synthesized
	// outcome is the weighted control average, which at the centroid is the
	// true counterfactual.
	assert.Nil(t, res.TauHatAug)
	synth := res.Outcomes[len(res.Outcomes)-3:]
	for k, r := range synth {
		assert.InDelta(t, 3.5+0.5*float64(6+k), r.Outcome, 0.1)
	}
}

func TestFitGSynNoneSkipsWeights(t *testing.T) {
	p := makeTestPanel(8, 5, 3)
	res, err := Fit(p, Config{TrtUnit: "trt", Prog: ProgGSYN, Weight: WeightNone})
	require.NoError(t, err)

	for _, w := range res.Weights {
		assert.Zero(t, w)
	}
	assert.Nil(t, res.Dual)
	// With zero weights the augmented effect reduces to the raw model
	// effect.
	require.Len(t, res.TauHatAug, 3)
	for k := range res.TauHatAug {
		assert.InDelta(t, res.Fit.TauHat[k], res.TauHatAug[k], 1e-12)
		assert.InDelta(t, 2.0, res.TauHatAug[k], 1e-6)
	}
}

func TestFitInvalidSelectors(t *testing.T) {
	p := makeTestPanel(5, 4, 2)
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown prog", cfg: Config{TrtUnit: "trt", Prog: "XX", Weight: WeightSC}},
		{name: "empty prog", cfg: Config{TrtUnit: "trt", Weight: WeightSC}},
		{name: "unknown weight", cfg: Config{TrtUnit: "trt", Prog: ProgEN, Weight: "XX"}},
		{name: "none weight without gsyn", cfg: Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightNone}},
		{name: "unknown screen", cfg: Config{TrtUnit: "trt", Screen: "XX", Weight: WeightSC}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(p, tt.cfg)
			require.Error(t, err)
			var cfgErr *errors.ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestFitRejectsProgWithScreen(t *testing.T) {
	p := makeTestPanel(5, 4, 2)
	_, err := Fit(p, Config{TrtUnit: "trt", Prog: ProgEN, Screen: ScreenLasso, Weight: WeightSC})
	require.Error(t, err)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestFitMissingTrtUnit(t *testing.T) {
	p := makeTestPanel(5, 4, 2)
	_, err := Fit(p, Config{TrtUnit: "ghost", Prog: ProgEN, Weight: WeightSC})
	assert.Error(t, err)

	_, err = Fit(p, Config{Prog: ProgEN, Weight: WeightSC})
	assert.Error(t, err)
}

func TestFitPreservesOriginalRows(t *testing.T) {
	p := makeTestPanel(6, 4, 2)
	res, err := Fit(p, Config{TrtUnit: "trt", Prog: ProgEN, Weight: WeightSC})
	require.NoError(t, err)

	// Every original row survives untouched, in unit-grouped order.
	type key struct {
		unit string
		time float64
	}
	orig := make(map[key]float64, len(p))
	for _, r := range p {
		orig[key{r.Unit, r.Time}] = r.Outcome
	}
	seen := 0
	for _, r := range res.Outcomes {
		if r.Synthetic == "Y" {
			continue
		}
		out, ok := orig[key{r.Unit, r.Time}]
		require.True(t, ok)
		assert.Equal(t, out, r.Outcome)
		seen++
	}
	assert.Equal(t, len(p), seen)
}
