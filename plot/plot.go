// Package plot renders estimation results: outcome trajectories for the
// treated unit against its synthesized counterfactual, and the per-period
// effect gap.
package plot

import (
	"sort"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/causalgo/augsynth"
	"github.com/causalgo/augsynth/pkg/errors"
)

// series is a time-ordered line of (period, outcome) points.
type series map[float64]float64

func (s series) xys() plotter.XYs {
	times := make([]float64, 0, len(s))
	for t := range s {
		times = append(times, t)
	}
	sort.Float64s(times)
	xys := make(plotter.XYs, len(times))
	for i, t := range times {
		xys[i] = plotter.XY{X: t, Y: s[t]}
	}
	return xys
}

// extract splits a result's panel into the treated unit's observed series,
// its synthesized counterfactual, and the plain control average.
func extract(res *augsynth.Result) (observed, counterfactual, ctrlMean series, err error) {
	if res == nil || len(res.Outcomes) == 0 {
		return nil, nil, nil, errors.Wrap(errors.ErrEmptyData, "plot.extract")
	}

	var trtUnit string
	counterfactual = series{}
	for _, r := range res.Outcomes {
		if r.Synthetic == "Y" {
			trtUnit = r.Unit
			counterfactual[r.Time] = r.Outcome
		}
	}
	if len(counterfactual) == 0 {
		return nil, nil, nil, errors.NewValueError("plot.extract", "result has no synthesized rows")
	}

	observed = series{}
	sums := map[float64]float64{}
	counts := map[float64]int{}
	for _, r := range res.Outcomes {
		if r.Synthetic == "Y" {
			continue
		}
		if r.Unit == trtUnit {
			observed[r.Time] = r.Outcome
			continue
		}
		sums[r.Time] += r.Outcome
		counts[r.Time]++
	}
	ctrlMean = series{}
	for t, s := range sums {
		ctrlMean[t] = s / float64(counts[t])
	}
	return observed, counterfactual, ctrlMean, nil
}

// treatmentMarker builds a vertical dashed line at the first post-treatment
// period, spanning the observed outcome range.
func treatmentMarker(observed, cf series) (*plotter.Line, error) {
	t0 := 0.0
	first := true
	for t := range cf {
		if first || t < t0 {
			t0 = t
			first = false
		}
	}
	lo, hi := 0.0, 0.0
	firstY := true
	for _, y := range observed {
		if firstY {
			lo, hi = y, y
			firstY = false
			continue
		}
		if y < lo {
			lo = y
		}
		if y > hi {
			hi = y
		}
	}
	line, err := plotter.NewLine(plotter.XYs{{X: t0, Y: lo}, {X: t0, Y: hi}})
	if err != nil {
		return nil, err
	}
	line.Dashes = []vg.Length{vg.Points(2), vg.Points(4)}
	return line, nil
}

// Trajectories writes a plot of the treated unit's observed outcome, its
// synthesized counterfactual, and the control average. The image format
// follows the path extension.
func Trajectories(res *augsynth.Result, path string) error {
	observed, cf, ctrlMean, err := extract(res)
	if err != nil {
		return err
	}

	p := gplot.New()
	p.Title.Text = "Outcome trajectories"
	p.X.Label.Text = "period"
	p.Y.Label.Text = "outcome"

	obsLine, err := plotter.NewLine(observed.xys())
	if err != nil {
		return errors.Wrap(err, "plot.Trajectories")
	}
	cfLine, err := plotter.NewLine(cf.xys())
	if err != nil {
		return errors.Wrap(err, "plot.Trajectories")
	}
	cfLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	ctrlLine, err := plotter.NewLine(ctrlMean.xys())
	if err != nil {
		return errors.Wrap(err, "plot.Trajectories")
	}
	ctrlLine.Dashes = []vg.Length{vg.Points(1), vg.Points(2)}

	p.Add(obsLine, cfLine, ctrlLine)
	if mark, err := treatmentMarker(observed, cf); err == nil {
		p.Add(mark)
	}
	p.Legend.Add("treated", obsLine)
	p.Legend.Add("synthetic Y(0)", cfLine)
	p.Legend.Add("control mean", ctrlLine)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "plot.Trajectories")
	}
	return nil
}

// Gaps writes a plot of the per-post-period effect, observed minus
// counterfactual, with a zero reference line.
func Gaps(res *augsynth.Result, path string) error {
	observed, cf, _, err := extract(res)
	if err != nil {
		return err
	}

	gap := series{}
	for t, c := range cf {
		gap[t] = observed[t] - c
	}
	xys := gap.xys()

	p := gplot.New()
	p.Title.Text = "Estimated effect"
	p.X.Label.Text = "period"
	p.Y.Label.Text = "gap"

	line, err := plotter.NewLine(xys)
	if err != nil {
		return errors.Wrap(err, "plot.Gaps")
	}
	pts, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "plot.Gaps")
	}
	zero, err := plotter.NewLine(plotter.XYs{
		{X: xys[0].X, Y: 0},
		{X: xys[len(xys)-1].X, Y: 0},
	})
	if err != nil {
		return errors.Wrap(err, "plot.Gaps")
	}
	zero.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}

	p.Add(line, pts, zero)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "plot.Gaps")
	}
	return nil
}
