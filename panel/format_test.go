package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePanel builds a balanced panel with nCtrl controls plus one treated
// unit "trt", nPre pre-periods and nPost post-periods. Outcomes follow a
// simple unit + time trend so tests can predict matrix entries.
func makePanel(nCtrl, nPre, nPost int) Panel {
	var p Panel
	nT := nPre + nPost
	for u := 0; u < nCtrl; u++ {
		for t := 0; t < nT; t++ {
			p = append(p, Row{
				Unit:    string(rune('A' + u)),
				Time:    float64(t),
				Outcome: float64(u+1) + 0.5*float64(t),
			})
		}
	}
	for t := 0; t < nT; t++ {
		p = append(p, Row{
			Unit:    "trt",
			Time:    float64(t),
			Outcome: 10 + 0.5*float64(t),
			Treated: t >= nPre,
		})
	}
	return p
}

func TestFormatShapes(t *testing.T) {
	p := makePanel(4, 5, 3)

	ipw, syn, err := Format(p, "trt")
	require.NoError(t, err)

	r, c := ipw.X.Dims()
	assert.Equal(t, 4, ipw.NControls())
	assert.Equal(t, 5, r) // 4 controls + 1 treated row
	assert.Equal(t, 5, c)

	ry, cy := ipw.Y.Dims()
	assert.Equal(t, 5, ry)
	assert.Equal(t, 3, cy)
	assert.Len(t, ipw.Trt, 5)

	rz, cz := syn.Synth.Z0.Dims()
	assert.Equal(t, 5, rz)
	assert.Equal(t, 4, cz)
	assert.Equal(t, rz, syn.Synth.Z1.Len())
	assert.Equal(t, []string{"A", "B", "C", "D"}, syn.CtrlUnits)

	// Treated profile is the treated unit's pre-period outcomes.
	for j := 0; j < rz; j++ {
		assert.InDelta(t, 10+0.5*float64(j), syn.Synth.Z1.AtVec(j), 1e-12)
	}
}

func TestFormatAlignment(t *testing.T) {
	p := makePanel(3, 4, 2)

	ipw, syn, err := Format(p, "trt")
	require.NoError(t, err)

	// Column k of Z0 must equal the pre-period row of control k in X.
	for k, u := range syn.CtrlUnits {
		var row int
		for i, cand := range ipw.Units {
			if cand == u {
				row = i
			}
		}
		for j := range syn.PreTimes {
			assert.Equal(t, ipw.X.At(row, j), syn.Synth.Z0.At(j, k))
		}
	}

	// Exactly one treated row, aligned with the treated unit.
	nTrt := 0
	for i, trt := range ipw.Trt {
		if trt {
			nTrt++
			assert.Equal(t, "trt", ipw.Units[i])
		}
	}
	assert.Equal(t, 1, nTrt)
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(Panel) Panel
		trtUnit string
	}{
		{
			name:    "missing treated unit",
			mutate:  func(p Panel) Panel { return p },
			trtUnit: "nope",
		},
		{
			name: "unbalanced panel",
			mutate: func(p Panel) Panel {
				return p[1:]
			},
			trtUnit: "trt",
		},
		{
			name: "duplicate observation",
			mutate: func(p Panel) Panel {
				return append(p, p[0])
			},
			trtUnit: "trt",
		},
		{
			name: "treated flag on a control unit",
			mutate: func(p Panel) Panel {
				q := append(Panel{}, p...)
				q[0].Treated = true
				return q
			},
			trtUnit: "trt",
		},
		{
			name: "no pre-treatment periods",
			mutate: func(p Panel) Panel {
				q := append(Panel{}, p...)
				for i := range q {
					if q[i].Unit == "trt" {
						q[i].Treated = true
					}
				}
				return q
			},
			trtUnit: "trt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.mutate(makePanel(3, 3, 2))
			_, _, err := Format(p, tt.trtUnit)
			assert.Error(t, err)
		})
	}
}

func TestFromRecords(t *testing.T) {
	records := []map[string]any{
		{"state": "GA", "year": 1990, "gdp": 1.5, "t": false},
		{"state": "GA", "year": 1991, "gdp": 1.7, "t": 1},
	}
	cols := Columns{Unit: "state", Time: "year", Outcome: "gdp", Treated: "t"}

	p, err := FromRecords(records, cols)
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, "GA", p[0].Unit)
	assert.Equal(t, 1990.0, p[0].Time)
	assert.False(t, p[0].Treated)
	assert.True(t, p[1].Treated)
}

func TestFromRecordsBadTypes(t *testing.T) {
	records := []map[string]any{
		{"unit": 7, "time": 0, "outcome": 1.0, "treated": false},
	}
	_, err := FromRecords(records, Columns{})
	assert.Error(t, err)
}
