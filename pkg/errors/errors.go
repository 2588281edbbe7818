// Package errors provides structured error handling for the augsynth
// estimators. Errors carry typed fields and stack traces via
// cockroachdb/errors, and implement zerolog's LogObjectMarshaler so they can
// be emitted as structured log events.
package errors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	warningMutex   sync.Mutex
	warningHandler func(w error)
)

// SetWarningHandler installs a handler for non-fatal warnings such as
// ConvergenceWarning. A nil handler silences warnings, which is the default
// for library use.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// Warn routes a warning through the installed handler, if any.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ConvergenceWarning is raised when an iterative solver stops before
// reaching its tolerance. The last iterate is still returned to the caller.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s did not converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s did not converge after %d iterations. Consider increasing max_iter or loosening the tolerance.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// NotFittedError is returned when Predict or a diagnostic accessor is called
// on an estimator that has not been fitted.
type NotFittedError struct {
	EstimatorName string
	Method        string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("augsynth: %s: this estimator is not fitted yet. Call Fit() before using %s()", e.EstimatorName, e.Method)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("estimator_name", e.EstimatorName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a new NotFittedError with a stack trace.
func NewNotFittedError(estimator, method string) error {
	err := &NotFittedError{EstimatorName: estimator, Method: method}
	return errors.WithStack(err)
}

// DimensionError reports a shape mismatch between aligned inputs, e.g.
// between X/y/trt rows or between Z0 rows and the Z1 length.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows/units, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("augsynth: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a new DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError reports an invalid option or input parameter value.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("augsynth: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a new ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is unusable for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("augsynth: %s: %s", e.Op, e.Message)
}

// NewValueError creates a new ValueError with a stack trace.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ConfigError reports an unrecognized selector value (outcome model,
// weighting scheme, or screening scheme). The message names the valid set;
// selectors are never silently defaulted.
type ConfigError struct {
	Selector string
	Value    string
	Valid    []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("augsynth: unknown %s %q. Valid values: %s", e.Selector, e.Value, strings.Join(e.Valid, ", "))
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("selector", e.Selector).
		Str("value", e.Value).
		Strs("valid", e.Valid).
		Str("type", "ConfigError")
}

// NewConfigError creates a new ConfigError with a stack trace.
func NewConfigError(selector, value string, valid []string) error {
	err := &ConfigError{Selector: selector, Value: value, Valid: valid}
	return errors.WithStack(err)
}

// InfeasibleError is returned when the balancing problem has no solution
// within the searched tolerance range. The whole estimation call aborts; no
// partial result accompanies this error.
type InfeasibleError struct {
	Op   string
	Lo   float64
	Hi   float64
	Step float64
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("augsynth: %s: no feasible balance tolerance in [%g, %g] (step %g)", e.Op, e.Lo, e.Hi, e.Step)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *InfeasibleError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Float64("lo", e.Lo).
		Float64("hi", e.Hi).
		Float64("step", e.Step).
		Str("type", "InfeasibleError")
}

// NewInfeasibleError creates a new InfeasibleError with a stack trace.
func NewInfeasibleError(op string, lo, hi, step float64) error {
	err := &InfeasibleError{Op: op, Lo: lo, Hi: hi, Step: step}
	return errors.WithStack(err)
}

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

var (
	// ErrEmptyData is returned when an empty panel or matrix is supplied.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a linear solve hits a singular system.
	ErrSingularMatrix = New("singular matrix")
)
