package panel

import (
	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/pkg/errors"
)

// IPWFormat is the outcome-modeling view of the panel: X holds pre-treatment
// outcomes (units x pre-periods), Y holds post-treatment outcomes (units x
// post-periods), and Trt flags the treated unit. Rows of X, Y, and entries
// of Trt are aligned by position.
type IPWFormat struct {
	X   *mat.Dense
	Y   *mat.Dense
	Trt []bool

	Units     []string
	PreTimes  []float64
	PostTimes []float64
}

// Validate checks the row-alignment invariant and fails fast on mismatch.
func (f IPWFormat) Validate() error {
	if f.X == nil || f.Y == nil {
		return errors.Wrap(errors.ErrEmptyData, "IPWFormat.Validate")
	}
	rx, _ := f.X.Dims()
	ry, _ := f.Y.Dims()
	if ry != rx {
		return errors.NewDimensionError("IPWFormat.Validate", rx, ry, 0)
	}
	if len(f.Trt) != rx {
		return errors.NewDimensionError("IPWFormat.Validate", rx, len(f.Trt), 0)
	}
	return nil
}

// NControls returns the number of control units.
func (f IPWFormat) NControls() int {
	n := 0
	for _, t := range f.Trt {
		if !t {
			n++
		}
	}
	return n
}

// SynthData is the matrix pair consumed by the weight fitters: Z0 holds one
// column of pre-period features per control unit, Z1 the treated unit's
// profile over the same features.
type SynthData struct {
	Z0 *mat.Dense
	Z1 *mat.VecDense
}

// SynthFormat wraps SynthData with the bookkeeping needed to assemble the
// imputed panel afterwards. Columns of Z0 correspond 1:1 to CtrlUnits.
type SynthFormat struct {
	Synth    SynthData
	Outcomes Panel
	TrtUnit  string

	CtrlUnits []string
	PreTimes  []float64
	PostTimes []float64
}

// Validate checks the Z0/Z1 alignment invariant.
func (f SynthFormat) Validate() error {
	if f.Synth.Z0 == nil || f.Synth.Z1 == nil {
		return errors.Wrap(errors.ErrEmptyData, "SynthFormat.Validate")
	}
	rz, cz := f.Synth.Z0.Dims()
	if f.Synth.Z1.Len() != rz {
		return errors.NewDimensionError("SynthFormat.Validate", rz, f.Synth.Z1.Len(), 0)
	}
	if len(f.CtrlUnits) != cz {
		return errors.NewDimensionError("SynthFormat.Validate", cz, len(f.CtrlUnits), 1)
	}
	return nil
}

// Format derives the IPW and synth views from a tidy panel for the given
// treated unit. The treatment time is the first period at which the treated
// unit's flag is set; earlier periods are the pre-period, that period and
// later the post-period. The panel must be balanced (every unit observed at
// every period exactly once) and only the designated unit may carry a
// treated flag.
func Format(p Panel, trtUnit string) (IPWFormat, SynthFormat, error) {
	var ipw IPWFormat
	var syn SynthFormat

	if len(p) == 0 {
		return ipw, syn, errors.Wrap(errors.ErrEmptyData, "panel.Format")
	}

	units := p.Units()
	times := p.Times()

	timeIdx := make(map[float64]int, len(times))
	for i, tm := range times {
		timeIdx[tm] = i
	}
	unitIdx := make(map[string]int, len(units))
	for i, u := range units {
		unitIdx[u] = i
	}

	if _, ok := unitIdx[trtUnit]; !ok {
		return ipw, syn, errors.NewValueError("panel.Format", "treated unit "+trtUnit+" not present in panel")
	}

	// Balanced-panel check: one observation per unit-period cell.
	outcomes := make([][]float64, len(units))
	treated := make([][]bool, len(units))
	seen := make([][]bool, len(units))
	for i := range units {
		outcomes[i] = make([]float64, len(times))
		treated[i] = make([]bool, len(times))
		seen[i] = make([]bool, len(times))
	}
	for _, r := range p {
		i, j := unitIdx[r.Unit], timeIdx[r.Time]
		if seen[i][j] {
			return ipw, syn, errors.NewValueError("panel.Format", "duplicate observation for unit "+r.Unit)
		}
		seen[i][j] = true
		outcomes[i][j] = r.Outcome
		treated[i][j] = r.Treated
	}
	for i := range units {
		for j := range times {
			if !seen[i][j] {
				return ipw, syn, errors.NewValueError("panel.Format", "unbalanced panel: unit "+units[i]+" missing periods")
			}
		}
	}

	// Treatment start and exclusivity of the treated flag.
	ti := unitIdx[trtUnit]
	t0 := -1
	for j := range times {
		if treated[ti][j] {
			t0 = j
			break
		}
	}
	if t0 < 0 {
		return ipw, syn, errors.NewValueError("panel.Format", "unit "+trtUnit+" has no treated periods")
	}
	for i := range units {
		if i == ti {
			continue
		}
		for j := range times {
			if treated[i][j] {
				return ipw, syn, errors.NewValueError("panel.Format", "unit "+units[i]+" carries a treated flag but is not the designated treated unit")
			}
		}
	}
	if t0 == 0 {
		return ipw, syn, errors.NewValueError("panel.Format", "treated unit has no pre-treatment periods")
	}

	preTimes := times[:t0]
	postTimes := times[t0:]
	nPre, nPost := len(preTimes), len(postTimes)

	X := mat.NewDense(len(units), nPre, nil)
	Y := mat.NewDense(len(units), nPost, nil)
	trt := make([]bool, len(units))
	for i := range units {
		trt[i] = i == ti
		for j := 0; j < nPre; j++ {
			X.Set(i, j, outcomes[i][j])
		}
		for j := 0; j < nPost; j++ {
			Y.Set(i, j, outcomes[i][t0+j])
		}
	}

	ctrlUnits := make([]string, 0, len(units)-1)
	for i, u := range units {
		if i != ti {
			ctrlUnits = append(ctrlUnits, u)
		}
	}

	Z0 := mat.NewDense(nPre, len(ctrlUnits), nil)
	col := 0
	for i := range units {
		if i == ti {
			continue
		}
		for j := 0; j < nPre; j++ {
			Z0.Set(j, col, outcomes[i][j])
		}
		col++
	}
	Z1 := mat.NewVecDense(nPre, nil)
	for j := 0; j < nPre; j++ {
		Z1.SetVec(j, outcomes[ti][j])
	}

	ipw = IPWFormat{
		X:         X,
		Y:         Y,
		Trt:       trt,
		Units:     units,
		PreTimes:  preTimes,
		PostTimes: postTimes,
	}
	syn = SynthFormat{
		Synth:     SynthData{Z0: Z0, Z1: Z1},
		Outcomes:  p,
		TrtUnit:   trtUnit,
		CtrlUnits: ctrlUnits,
		PreTimes:  preTimes,
		PostTimes: postTimes,
	}

	if err := ipw.Validate(); err != nil {
		return ipw, syn, err
	}
	if err := syn.Validate(); err != nil {
		return ipw, syn, err
	}
	return ipw, syn, nil
}
