// Package log provides the structured logger used across the augsynth
// estimators. It is a thin wrapper over zerolog: the package-level logger is
// disabled by default so the library stays silent unless the host
// application opts in via SetLogger.
package log

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Common structured field keys used by the estimators.
const (
	OperationKey = "operation"
	UnitsKey     = "n_units"
	ControlsKey  = "n_controls"
	PrePeriods   = "n_pre_periods"
	PostPeriods  = "n_post_periods"
	ObjectiveKey = "objective"
	EpsilonKey   = "epsilon"
	RankKey      = "rank"
	LambdaKey    = "lambda"
)

var (
	mu     sync.RWMutex
	logger = zerolog.Nop()
)

// SetLogger installs the logger used by the library.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// NewLogger builds a zerolog logger writing JSON to w, suitable for passing
// to SetLogger. Tests can hand in a bytes.Buffer to capture output.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Logger returns the currently installed logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug starts a debug-level event on the installed logger.
func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

// Info starts an info-level event on the installed logger.
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn starts a warn-level event on the installed logger.
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}
