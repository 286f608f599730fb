package lss

import (
	"errors"
	"fmt"
)

// Configuration sentinels. Every error returned for a bad Integrator set up wraps one of these in a
// *ConfigurationError, so callers can match with errors.Is.
var (
	// ErrDimensionNotSet is returned when bounds are set one side at a time before the dimension.
	ErrDimensionNotSet = errors.New("lss: dimension not yet specified")
	// ErrBadDimension is returned for a negative dimension, or a zero one at integration time.
	ErrBadDimension = errors.New("lss: invalid dimension")
	// ErrNilBounds is returned when bound slices are missing while the dimension is positive.
	ErrNilBounds = errors.New("lss: bounds are nil")
	// ErrBoundsLength is returned when a bound slice is shorter than the dimension.
	ErrBoundsLength = errors.New("lss: bounds shorter than dimension")
	// ErrNonFiniteBounds is returned at dispatch when a bound is NaN or infinite.
	ErrNonFiniteBounds = errors.New("lss: bounds are not finite")
	// ErrReversedBounds is returned at dispatch when lower[i] > upper[i] for some axis.
	ErrReversedBounds = errors.New("lss: lower bound greater than upper bound")
	// ErrUnknownRoutine is returned for a routine name or value which is not cquad, vegas or divonne.
	ErrUnknownRoutine = errors.New("lss: unknown integration routine")
	// ErrMissingConfig is returned when the configuration of the selected routine is absent.
	ErrMissingConfig = errors.New("lss: missing configuration for routine")
	// ErrInvalidConfig is returned when a backend configuration holds unusable values.
	ErrInvalidConfig = errors.New("lss: invalid routine configuration")
	// ErrDimensionMismatch is returned when the routine cannot integrate in the set dimension.
	ErrDimensionMismatch = errors.New("lss: dimension not supported by routine")
	// ErrNoIntegrand is returned when Integrate has no function to integrate.
	ErrNoIntegrand = errors.New("lss: no integrand")
)

// ConfigurationError reports a set up mistake detected before any backend state is created.
type ConfigurationError struct {
	Op  string // operation which detected the problem, e.g. "SetBoundsUpper"
	Err error  // one of the Err* sentinels, possibly wrapped with details
}

func (e *ConfigurationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

func configErrf(op string, sentinel error, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf("%w: "+format, append([]interface{}{sentinel}, args...)...)}
}

// BackendError reports a failure inside a numerical kernel, such as a non-finite estimate.
type BackendError struct {
	Routine Routine
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("lss: %s backend: %s", e.Routine, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
