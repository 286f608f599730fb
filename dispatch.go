package lss

import (
	"fmt"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// Result is the outcome of one integration.
type Result struct {
	Value       float64
	Error       float64
	Extra       float64 // χ²/dof for ImportanceMC, χ² probability for StratifiedMC, zero for Quadrature
	Routine     Routine
	Evaluations int
	Converged   bool
	Iterations  int         // refinement iterations run by the ImportanceMC loop
	History     []Iteration // one entry per ImportanceMC refinement iteration
}

// Iteration is the estimate of one ImportanceMC refinement call.
type Iteration struct {
	Calls     uint
	Value     float64
	Error     float64
	ChiSquare float64
}

// Vector returns [value, error, extra].
func (r Result) Vector() []float64 {
	return []float64{r.Value, r.Error, r.Extra}
}

// Fill copies as much of [value, error, extra] as fits into out and returns the count.
func (r Result) Fill(out []float64) int {
	return copy(out, r.Vector())
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %g ± %g (extra=%g, evals=%d, converged=%v)", r.Routine, r.Value, r.Error, r.Extra, r.Evaluations, r.Converged)
}

// executor runs one backend on a validated Integrator.
type executor func(ig *Integrator) (Result, error)

// executors is indexed by Routine.
var executors = [...]executor{
	ImportanceMC: runImportanceMC,
	Quadrature:   runQuadrature,
	StratifiedMC: runStratifiedMC,
}

// Integrate integrates f with the routine selected in ig. f replaces the integrand stored in ig,
// so one template can serve several integrands; a nil f keeps the stored one. Configuration
// errors are returned before any backend state exists. Running out of iterations or subintervals
// is not an error: the best estimate is returned with Converged unset.
func Integrate(f Integrand, ig *Integrator) (Result, error) {
	if f != nil {
		ig.integrand = f
	}
	start := time.Now()
	if err := ig.check(); err != nil {
		observe(ig.routine, outcomeConfigError, 0, time.Since(start))
		return Result{Routine: ig.routine}, err
	}
	res, err := executors[ig.routine](ig)
	res.Routine = ig.routine
	switch {
	case err != nil:
		observe(ig.routine, outcomeBackendError, res.Evaluations, time.Since(start))
	case res.Converged:
		observe(ig.routine, outcomeConverged, res.Evaluations, time.Since(start))
	default:
		observe(ig.routine, outcomeExhausted, res.Evaluations, time.Since(start))
	}
	return res, err
}

// Integrate is the method form of Integrate.
func (ig *Integrator) Integrate(f Integrand) (Result, error) {
	return Integrate(f, ig)
}

// IntegrateInto integrates and writes [value, error, extra] into out, which must hold at least
// the value and the error.
func IntegrateInto(f Integrand, ig *Integrator, out []float64) error {
	if len(out) < 2 {
		return configErrf("IntegrateInto", ErrInvalidConfig, "result slice of length %d", len(out))
	}
	res, err := Integrate(f, ig)
	if err != nil {
		return err
	}
	res.Fill(out)
	return nil
}

// check validates everything the selected backend relies on.
func (ig *Integrator) check() error {
	return ig.checkFor("Integrate", ig.routine)
}

// checkFor validates the integrand, the domain and the configuration of routine r.
func (ig *Integrator) checkFor(op string, r Routine) error {
	if ig.integrand == nil {
		return configErr(op, ErrNoIntegrand)
	}
	return ig.checkSetup(op, r)
}

// checkSetup validates the domain and the configuration of routine r.
func (ig *Integrator) checkSetup(op string, r Routine) error {
	if !r.Valid() {
		return configErrf(op, ErrUnknownRoutine, "%s", r)
	}
	if ig.dim <= 0 {
		return configErrf(op, ErrBadDimension, "%d", ig.dim)
	}
	if len(ig.lower) != ig.dim || len(ig.upper) != ig.dim {
		return configErr(op, ErrBoundsLength)
	}
	if i := unbounded(ig.lower, ig.upper); i >= 0 {
		return configErrf(op, ErrNonFiniteBounds, "axis %d: [%g, %g]", i, ig.lower[i], ig.upper[i])
	}
	if i := ordered(ig.lower, ig.upper); i >= 0 {
		return configErrf(op, ErrReversedBounds, "axis %d: [%g, %g]", i, ig.lower[i], ig.upper[i])
	}
	var err error
	switch r {
	case Quadrature:
		if ig.quadrature == nil {
			return configErrf(op, ErrMissingConfig, "%s", r)
		}
		if ig.dim != 1 {
			return configErrf(op, ErrDimensionMismatch, "%s integrates one axis, got %d", r, ig.dim)
		}
		err = ig.quadrature.validate()
	case ImportanceMC:
		if ig.importance == nil {
			return configErrf(op, ErrMissingConfig, "%s", r)
		}
		err = ig.importance.validate()
	case StratifiedMC:
		if ig.stratified == nil {
			return configErrf(op, ErrMissingConfig, "%s", r)
		}
		err = ig.stratified.validate()
	}
	if err != nil {
		return configErr(op, err)
	}
	return nil
}

func (ig *Integrator) log() kitlog.Logger {
	if ig.logger == nil {
		return kitlog.NewNopLogger()
	}
	return kitlog.With(ig.logger, "routine", ig.routine.String())
}
