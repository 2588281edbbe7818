package augsynth

import (
	"github.com/causalgo/augsynth/balance"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
	"github.com/causalgo/augsynth/prognostic"
	"github.com/causalgo/augsynth/screen"
)

// Prog selects the outcome-model backend.
type Prog string

const (
	// ProgEN fits a cross-validated elastic net per post-period.
	ProgEN Prog = "EN"
	// ProgRF fits a random forest per post-period.
	ProgRF Prog = "RF"
	// ProgGSYN fits the latent factor model and always produces the
	// factor-augmented estimator.
	ProgGSYN Prog = "GSYN"
)

// Weight selects the balancing-weight backend.
type Weight string

const (
	// WeightSC fits simplex-constrained synthetic control weights.
	WeightSC Weight = "SC"
	// WeightENT fits entropy weights with an imbalance tolerance.
	WeightENT Weight = "ENT"
	// WeightNone skips weighting entirely. Only valid with ProgGSYN.
	WeightNone Weight = "NONE"
)

// Screen selects the covariate-screening step. When set, the screening
// substitution estimator runs and Prog must be left empty.
type Screen string

const (
	// ScreenOff disables screening.
	ScreenOff Screen = ""
	// ScreenLasso keeps covariates the lasso screen selects.
	ScreenLasso Screen = "LAS"
	// ScreenDouble unions the lasso selection with a dual-screen
	// selection found at the smallest feasible imbalance level. The
	// selector string "2" is accepted as an alias.
	ScreenDouble Screen = "DBL"
)

var (
	validProg   = []string{string(ProgEN), string(ProgRF), string(ProgGSYN)}
	validWeight = []string{string(WeightSC), string(WeightENT), string(WeightNone)}
	validScreen = []string{string(ScreenLasso), string(ScreenDouble), "2"}
)

// isDouble reports whether s selects the double screen, accepting the "2"
// alias.
func (s Screen) isDouble() bool {
	return s == ScreenDouble || s == "2"
}

// Config specifies an estimation run. TrtUnit, Prog (or Screen), and Weight
// select the estimator; the remaining fields tune the chosen backends and
// may be left zero for defaults.
type Config struct {
	// TrtUnit names the treated unit in the panel. Required.
	TrtUnit string

	Prog   Prog
	Weight Weight
	Screen Screen

	// Substitute switches the EN and RF backends from the augmented
	// estimator to pure prognostic substitution.
	Substitute bool

	EN   prognostic.ENOptions
	RF   prognostic.RFOptions
	GSYN prognostic.GSYNOptions

	SC  balance.SCOptions
	ENT balance.ENTOptions

	ScreenOpts screen.Options
}

func (c Config) validate() error {
	if c.TrtUnit == "" {
		return errors.NewValidationError("TrtUnit", "must name the treated unit", c.TrtUnit)
	}
	if c.Screen != ScreenOff {
		if c.Screen != ScreenLasso && !c.Screen.isDouble() {
			return errors.NewConfigError("screen", string(c.Screen), validScreen)
		}
		if c.Prog != "" {
			return errors.NewValidationError("Prog", "cannot be combined with Screen", string(c.Prog))
		}
	} else if c.Prog != ProgEN && c.Prog != ProgRF && c.Prog != ProgGSYN {
		return errors.NewConfigError("prog", string(c.Prog), validProg)
	}
	switch c.Weight {
	case WeightSC, WeightENT:
	case WeightNone:
		if c.Prog != ProgGSYN {
			return errors.NewConfigError("weight", string(c.Weight), []string{string(WeightSC), string(WeightENT)})
		}
	default:
		return errors.NewConfigError("weight", string(c.Weight), validWeight)
	}
	return nil
}

func (c Config) fitter() balance.Fitter {
	switch c.Weight {
	case WeightENT:
		return balance.Entropy{Opts: c.ENT}
	case WeightNone:
		return nil
	default:
		return balance.SC{Opts: c.SC}
	}
}

// Fit runs the configured estimator on a tidy panel and returns the imputed
// result. The panel must be balanced, contain exactly one treated unit
// matching cfg.TrtUnit, and give that unit at least one pre-treatment
// period. Selector validation happens before any data work, so a bad Config
// never produces partial output.
func Fit(p panel.Panel, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ipw, syn, err := panel.Format(p, cfg.TrtUnit)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str(log.OperationKey, "augsynth.Fit").
		Str("trt_unit", cfg.TrtUnit).
		Str("prog", string(cfg.Prog)).
		Str("weight", string(cfg.Weight)).
		Str("screen", string(cfg.Screen)).
		Int(log.ControlsKey, ipw.NControls()).
		Int(log.PostPeriods, len(syn.PostTimes)).
		Msg("starting fit")

	fitter := cfg.fitter()

	if cfg.Screen != ScreenOff {
		var sel *screen.Selection
		if cfg.Screen.isDouble() {
			sel, err = screen.Double(ipw, syn, cfg.ScreenOpts)
		} else {
			sel, err = screen.Single(ipw, syn, cfg.ScreenOpts)
		}
		if err != nil {
			return nil, err
		}
		fit, err := fitScreenSyn(ipw, sel, fitter)
		if err != nil {
			return nil, err
		}
		return imputeWeighted(ipw, syn, fit), nil
	}

	if cfg.Prog == ProgGSYN {
		fit, err := fitGSynAug(ipw, syn, cfg.GSYN, fitter)
		if err != nil {
			return nil, err
		}
		return imputeAugmented(ipw, syn, fit), nil
	}

	var model prognostic.Model
	if cfg.Prog == ProgRF {
		model = prognostic.RandomForest{Opts: cfg.RF}
	} else {
		model = prognostic.ElasticNet{Opts: cfg.EN}
	}

	if cfg.Substitute {
		fit, err := fitProgSyn(ipw, model, fitter)
		if err != nil {
			return nil, err
		}
		return imputeWeighted(ipw, syn, fit), nil
	}

	fit, err := fitAugSyn(ipw, syn, model, fitter)
	if err != nil {
		return nil, err
	}
	return imputeAugmented(ipw, syn, fit), nil
}
