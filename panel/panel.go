// Package panel holds the tidy panel data model and the formatting step that
// derives the two structured views consumed by the estimators: the IPW
// format (X, y, trt) used for outcome modeling and the synth format (Z0, Z1)
// used for weight balancing.
package panel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/causalgo/augsynth/pkg/errors"
)

// Row is one unit-period observation of a long-format panel. Synthetic and
// PotentialOutcome are empty for observed rows; imputation fills them on the
// synthesized counterfactual block.
type Row struct {
	Unit             string
	Time             float64
	Outcome          float64
	Treated          bool
	Synthetic        string
	PotentialOutcome string
}

// Panel is a tidy long-format panel, one row per unit-period.
type Panel []Row

// Columns maps the caller's column names onto the panel schema for
// record-oriented ingestion.
type Columns struct {
	Unit    string
	Time    string
	Outcome string
	Treated string
}

// DefaultColumns returns the conventional column names.
func DefaultColumns() Columns {
	return Columns{Unit: "unit", Time: "time", Outcome: "outcome", Treated: "treated"}
}

// FromRecords builds a Panel from generic records keyed by column name,
// using cols to locate the unit, time, outcome, and treated columns. Zero
// fields of cols fall back to DefaultColumns.
func FromRecords(records []map[string]any, cols Columns) (Panel, error) {
	def := DefaultColumns()
	if cols.Unit == "" {
		cols.Unit = def.Unit
	}
	if cols.Time == "" {
		cols.Time = def.Time
	}
	if cols.Outcome == "" {
		cols.Outcome = def.Outcome
	}
	if cols.Treated == "" {
		cols.Treated = def.Treated
	}

	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "panel.FromRecords")
	}

	p := make(Panel, 0, len(records))
	for i, rec := range records {
		unit, ok := rec[cols.Unit].(string)
		if !ok {
			return nil, errors.NewValidationError(cols.Unit, fmt.Sprintf("record %d: unit must be a string", i), rec[cols.Unit])
		}
		tv, err := toFloat(rec[cols.Time])
		if err != nil {
			return nil, errors.NewValidationError(cols.Time, fmt.Sprintf("record %d: %v", i, err), rec[cols.Time])
		}
		ov, err := toFloat(rec[cols.Outcome])
		if err != nil {
			return nil, errors.NewValidationError(cols.Outcome, fmt.Sprintf("record %d: %v", i, err), rec[cols.Outcome])
		}
		trt, err := toBool(rec[cols.Treated])
		if err != nil {
			return nil, errors.NewValidationError(cols.Treated, fmt.Sprintf("record %d: %v", i, err), rec[cols.Treated])
		}
		p = append(p, Row{Unit: unit, Time: tv, Outcome: ov, Treated: trt})
	}
	return p, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("value %v is not numeric", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		switch strings.ToLower(x) {
		case "1", "y", "yes", "true":
			return true, nil
		case "0", "n", "no", "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("value %v is not a treatment indicator", v)
}

// Units returns the unit identifiers in order of first appearance.
func (p Panel) Units() []string {
	seen := make(map[string]bool)
	units := make([]string, 0)
	for _, r := range p {
		if !seen[r.Unit] {
			seen[r.Unit] = true
			units = append(units, r.Unit)
		}
	}
	return units
}

// Times returns the sorted distinct time points.
func (p Panel) Times() []float64 {
	seen := make(map[float64]bool)
	times := make([]float64, 0)
	for _, r := range p {
		if !seen[r.Time] {
			seen[r.Time] = true
			times = append(times, r.Time)
		}
	}
	sort.Float64s(times)
	return times
}
