package lss

import (
	"fmt"

	kitlog "github.com/go-kit/kit/log"
)

// Integrand is the function being integrated. x holds one point of the domain (its length is the
// dimension) and params is the opaque parameter blob stored in the Integrator.
type Integrand func(x []float64, params interface{}) float64

// Integrator holds everything needed to integrate: the domain, the backend configurations, the
// selected routine and the integrand. Integrators are not safe for concurrent use: every worker
// must Copy its own.
type Integrator struct {
	dim          int
	lower, upper []float64
	quadrature   *QuadratureConfig
	importance   *ImportanceMCConfig
	stratified   *StratifiedMCConfig
	routine      Routine
	integrand    Integrand
	params       interface{}
	logger       kitlog.Logger
}

// NewIntegrator returns an empty Integrator using ImportanceMC and a no-op logger.
func NewIntegrator() *Integrator {
	return &Integrator{routine: ImportanceMC, logger: kitlog.NewNopLogger()}
}

// Dimension returns the number of integration axes.
func (ig *Integrator) Dimension() int {
	return ig.dim
}

// SetDimension resizes the bounds to n axes, zero-filling new ones.
func (ig *Integrator) SetDimension(n int) error {
	if n < 0 {
		return configErrf("SetDimension", ErrBadDimension, "%d", n)
	}
	ig.lower = resize(ig.lower, n)
	ig.upper = resize(ig.upper, n)
	ig.dim = n
	return nil
}

func resize(s []float64, n int) []float64 {
	r := make([]float64, n)
	copy(r, s)
	return r
}

// SetBounds sets the dimension and both bounds at once. Nothing changes if it fails.
func (ig *Integrator) SetBounds(dim int, upper, lower []float64) error {
	const op = "SetBounds"
	if dim < 0 {
		return configErrf(op, ErrBadDimension, "%d", dim)
	}
	if dim > 0 && (upper == nil || lower == nil) {
		return configErr(op, ErrNilBounds)
	}
	if len(upper) < dim || len(lower) < dim {
		return configErrf(op, ErrBoundsLength, "dim=%d, len(upper)=%d, len(lower)=%d", dim, len(upper), len(lower))
	}
	ig.dim = dim
	ig.upper = resize(upper[:dim], dim)
	ig.lower = resize(lower[:dim], dim)
	return nil
}

// SetBoundsUpper sets the upper bounds. The dimension must already be set.
func (ig *Integrator) SetBoundsUpper(upper []float64) error {
	return ig.setSide("SetBoundsUpper", upper, &ig.upper)
}

// SetBoundsLower sets the lower bounds. The dimension must already be set.
func (ig *Integrator) SetBoundsLower(lower []float64) error {
	return ig.setSide("SetBoundsLower", lower, &ig.lower)
}

func (ig *Integrator) setSide(op string, src []float64, dst *[]float64) error {
	if ig.dim == 0 {
		return configErr(op, ErrDimensionNotSet)
	}
	if src == nil {
		return configErr(op, ErrNilBounds)
	}
	if len(src) < ig.dim {
		return configErrf(op, ErrBoundsLength, "dim=%d, len=%d", ig.dim, len(src))
	}
	*dst = resize(src[:ig.dim], ig.dim)
	return nil
}

// LowerBounds returns a copy of the lower bounds.
func (ig *Integrator) LowerBounds() []float64 {
	return resize(ig.lower, ig.dim)
}

// UpperBounds returns a copy of the upper bounds.
func (ig *Integrator) UpperBounds() []float64 {
	return resize(ig.upper, ig.dim)
}

// Routine returns the selected routine.
func (ig *Integrator) Routine() Routine {
	return ig.routine
}

// SetRoutine selects the routine by name (see ParseRoutine). The routine is unchanged on error.
func (ig *Integrator) SetRoutine(name string) error {
	r, err := ParseRoutine(name)
	if err != nil {
		return configErrf("SetRoutine", ErrUnknownRoutine, "%q", name)
	}
	ig.routine = r
	return nil
}

// SetRoutineID selects the routine from its enum value.
func (ig *Integrator) SetRoutineID(r Routine) error {
	if !r.Valid() {
		return configErrf("SetRoutineID", ErrUnknownRoutine, "%s", r)
	}
	ig.routine = r
	return nil
}

// SetQuadratureConfig stores a copy of cfg; nil clears it.
func (ig *Integrator) SetQuadratureConfig(cfg *QuadratureConfig) {
	ig.quadrature = nil
	if cfg != nil {
		c := *cfg
		ig.quadrature = &c
	}
}

// SetImportanceMCConfig stores a copy of cfg; nil clears it.
func (ig *Integrator) SetImportanceMCConfig(cfg *ImportanceMCConfig) {
	ig.importance = nil
	if cfg != nil {
		c := *cfg
		ig.importance = &c
	}
}

// SetStratifiedMCConfig stores a copy of cfg; nil clears it.
func (ig *Integrator) SetStratifiedMCConfig(cfg *StratifiedMCConfig) {
	ig.stratified = nil
	if cfg != nil {
		c := *cfg
		ig.stratified = &c
	}
}

// QuadratureConfig returns a copy of the quadrature configuration and whether it is set.
func (ig *Integrator) QuadratureConfig() (QuadratureConfig, bool) {
	if ig.quadrature == nil {
		return QuadratureConfig{}, false
	}
	return *ig.quadrature, true
}

// ImportanceMCConfig returns a copy of the importance-sampling configuration and whether it is set.
func (ig *Integrator) ImportanceMCConfig() (ImportanceMCConfig, bool) {
	if ig.importance == nil {
		return ImportanceMCConfig{}, false
	}
	return *ig.importance, true
}

// StratifiedMCConfig returns a copy of the stratified configuration and whether it is set.
func (ig *Integrator) StratifiedMCConfig() (StratifiedMCConfig, bool) {
	if ig.stratified == nil {
		return StratifiedMCConfig{}, false
	}
	return *ig.stratified, true
}

// SetIntegrand stores the integrand. Integrate replaces it with its own argument.
func (ig *Integrator) SetIntegrand(f Integrand) {
	ig.integrand = f
}

// SetParams stores the parameter blob handed to the integrand. It is not copied: the caller owns
// it and must keep it alive and unchanged while integrating.
func (ig *Integrator) SetParams(params interface{}) {
	ig.params = params
}

// Params returns the parameter blob.
func (ig *Integrator) Params() interface{} {
	return ig.params
}

// SetLogger sets the logger; nil restores the no-op logger.
func (ig *Integrator) SetLogger(logger kitlog.Logger) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	ig.logger = logger
}

// Copy returns a deep copy: bounds and configurations are duplicated, while the integrand, the
// params blob and the logger are shared.
func (ig *Integrator) Copy() *Integrator {
	c := *ig
	c.lower = resize(ig.lower, ig.dim)
	c.upper = resize(ig.upper, ig.dim)
	c.SetQuadratureConfig(ig.quadrature)
	c.SetImportanceMCConfig(ig.importance)
	c.SetStratifiedMCConfig(ig.stratified)
	if c.logger == nil {
		c.logger = kitlog.NewNopLogger()
	}
	return &c
}

func (ig *Integrator) String() string {
	return fmt.Sprintf("%s dim=%d lower=%v upper=%v", ig.routine, ig.dim, ig.lower, ig.upper)
}
