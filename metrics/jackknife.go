package metrics

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/causalgo/augsynth"
	"github.com/causalgo/augsynth/panel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// JackknifeResult holds the delete-one-control jackknife estimate of the
// average effect and its standard error, plus the replicate estimates.
type JackknifeResult struct {
	ATT  float64
	SE   float64
	Reps []float64
}

// Jackknife refits the configured estimator once per control unit, each
// time with that unit removed, and turns the spread of the replicate ATT
// estimates into a standard error. At least three control units are
// required so every replicate still has two controls to weight.
func Jackknife(p panel.Panel, cfg augsynth.Config) (*JackknifeResult, error) {
	full, err := augsynth.Fit(p, cfg)
	if err != nil {
		return nil, err
	}
	att, err := ATT(full)
	if err != nil {
		return nil, err
	}

	if len(full.CtrlUnits) < 3 {
		return nil, errors.NewValueError("metrics.Jackknife", "need at least three control units")
	}

	reps := make([]float64, 0, len(full.CtrlUnits))
	for _, drop := range full.CtrlUnits {
		sub := make(panel.Panel, 0, len(p))
		for _, r := range p {
			if r.Unit != drop {
				sub = append(sub, r)
			}
		}
		res, err := augsynth.Fit(sub, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "metrics.Jackknife: refit without %s", drop)
		}
		rep, err := ATT(res)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}

	mean, err := stats.Mean(stats.Float64Data(reps))
	if err != nil {
		return nil, errors.Wrap(err, "metrics.Jackknife")
	}
	n := float64(len(reps))
	ss := 0.0
	for _, r := range reps {
		d := r - mean
		ss += d * d
	}
	se := math.Sqrt((n - 1) / n * ss)

	log.Debug().
		Str(log.OperationKey, "metrics.Jackknife").
		Int(log.ControlsKey, len(reps)).
		Msg("jackknife complete")

	return &JackknifeResult{ATT: att, SE: se, Reps: reps}, nil
}
