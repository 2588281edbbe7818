package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Format", 10, 8, 0)

	want := "augsynth: Format: dimension mismatch on axis 0 (rows). Expected 10, got 8"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	formatted := fmt.Sprintf("%+v", err)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected stack trace to contain test file name")
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 10 || dimErr.Got != 8 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewConfigError(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		value    string
		valid    []string
		wantMsg  string
	}{
		{
			name:     "outcome model selector",
			selector: "outcome model",
			value:    "XX",
			valid:    []string{"EN", "RF", "GSYN"},
			wantMsg:  `augsynth: unknown outcome model "XX". Valid values: EN, RF, GSYN`,
		},
		{
			name:     "weighting selector",
			selector: "weighting scheme",
			value:    "QP",
			valid:    []string{"SC", "ENT", "NONE"},
			wantMsg:  `augsynth: unknown weighting scheme "QP". Valid values: SC, ENT, NONE`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.selector, tt.value, tt.valid)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var cfgErr *ConfigError
			if !As(err, &cfgErr) {
				t.Error("Error should be castable to *ConfigError")
			}
		})
	}
}

func TestNewInfeasibleError(t *testing.T) {
	err := NewInfeasibleError("ScreenDouble", 0.1, 4.2, 0.1)

	if !strings.Contains(err.Error(), "no feasible balance tolerance") {
		t.Errorf("unexpected message: %v", err.Error())
	}

	var infErr *InfeasibleError
	if !As(err, &infErr) {
		t.Error("Error should be castable to *InfeasibleError")
	}
	if infErr.Lo != 0.1 || infErr.Hi != 4.2 {
		t.Errorf("unexpected fields: %+v", infErr)
	}
}

func TestWarnHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) { captured = w })
	defer SetWarningHandler(nil)

	w := NewConvergenceWarning("FrankWolfe", 1000, "dual gap above tolerance")
	Warn(w)

	if captured == nil {
		t.Fatal("warning handler was not invoked")
	}
	if !strings.Contains(captured.Error(), "FrankWolfe did not converge after 1000 iterations") {
		t.Errorf("unexpected warning message: %v", captured.Error())
	}
}

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("ElasticNet", "Predict")
	want := "augsynth: ElasticNet: this estimator is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}
