package lss

import "fmt"

// QuadratureConfig configures the 1-D adaptive quadrature routine.
type QuadratureConfig struct {
	RelativeError    float64 // relative error goal
	AbsoluteError    float64 // absolute error goal
	SubintervalLimit uint    // maximum number of subintervals kept by the bisection
	Verbose          bool
}

// DefaultQuadratureConfig returns the usual settings of the quadrature routine.
func DefaultQuadratureConfig() QuadratureConfig {
	return QuadratureConfig{RelativeError: 1e-4, AbsoluteError: 1e-12, SubintervalLimit: 100}
}

func (c QuadratureConfig) validate() error {
	if c.RelativeError < 0 || c.AbsoluteError < 0 {
		return fmt.Errorf("%w: negative error goal", ErrInvalidConfig)
	}
	if c.RelativeError == 0 && c.AbsoluteError == 0 {
		return fmt.Errorf("%w: both error goals are zero", ErrInvalidConfig)
	}
	if c.SubintervalLimit == 0 {
		return fmt.Errorf("%w: subinterval limit is zero", ErrInvalidConfig)
	}
	return nil
}

// ImportanceMCConfig configures the adaptive importance-sampling routine.
//
// MainCalls is the sample budget of each refinement call; the adaptive loop multiplies it by
// CallGrowthFactor whenever the relative error target is missed. The loop works on its own copy
// of the configuration, hence the Integrator's copy never changes.
type ImportanceMCConfig struct {
	WarmUpCalls         uint
	MainCalls           uint
	CallGrowthFactor    float64 // >= 1
	MaxIterations       int     // refinement calls after the warm-up
	ChiSquareTolerance  float64 // converged when |χ²/dof - 1| < ChiSquareTolerance
	RelativeErrorTarget float64 // zero disables the relative error gate
	Verbose             bool

	IterationsPerCall int     // grid iterations averaged within one call, at least 2
	Alpha             float64 // grid stiffness of the refinement
	Bins              int     // grid bins per axis
	Seed              uint64  // seed of the per-call random source
}

// DefaultImportanceMCConfig returns the usual settings of the importance-sampling routine.
func DefaultImportanceMCConfig() ImportanceMCConfig {
	return ImportanceMCConfig{
		WarmUpCalls:         10000,
		MainCalls:           100000,
		CallGrowthFactor:    2,
		MaxIterations:       10,
		ChiSquareTolerance:  0.5,
		RelativeErrorTarget: 1e-3,
		IterationsPerCall:   5,
		Alpha:               1.5,
		Bins:                50,
	}
}

func (c ImportanceMCConfig) validate() error {
	switch {
	case c.MainCalls < 2:
		return fmt.Errorf("%w: main calls must be at least 2", ErrInvalidConfig)
	case c.WarmUpCalls == 1:
		return fmt.Errorf("%w: warm-up calls must be zero or at least 2", ErrInvalidConfig)
	case c.CallGrowthFactor < 1:
		return fmt.Errorf("%w: call growth factor %g < 1", ErrInvalidConfig, c.CallGrowthFactor)
	case c.MaxIterations < 0:
		return fmt.Errorf("%w: negative max iterations", ErrInvalidConfig)
	case c.MaxIterations == 0 && c.WarmUpCalls == 0:
		return fmt.Errorf("%w: neither warm-up nor refinement calls", ErrInvalidConfig)
	case c.ChiSquareTolerance < 0 || c.RelativeErrorTarget < 0:
		return fmt.Errorf("%w: negative tolerance", ErrInvalidConfig)
	case c.IterationsPerCall < 2:
		return fmt.Errorf("%w: iterations per call must be at least 2 for a χ² estimate", ErrInvalidConfig)
	case c.Alpha < 0:
		return fmt.Errorf("%w: negative grid stiffness", ErrInvalidConfig)
	case c.Bins < 1:
		return fmt.Errorf("%w: bins must be positive", ErrInvalidConfig)
	}
	return nil
}

// StratifiedMCConfig configures the stratified region-partitioning routine. Its fields follow the
// usual divonne parameters: keys select the samplers, passes and χ² bounds drive the partitioning.
type StratifiedMCConfig struct {
	ComponentCount          int // integrand output width, must be 1
	VectorizationWidth      int // points handed to the adapter per batch
	RelativeAccuracyGoal    float64
	AbsoluteAccuracyGoal    float64
	RandomSeed              int
	MinEvaluations          int
	MaxEvaluations          int
	PartitioningSamplingKey int // sign picks the sampler, magnitude the points per region
	FinalSamplingKey        int
	RefinementStrategyKey   int // non-zero refines regions failing the χ² test once more
	MaxPartitioningPasses   int
	BorderWidth             float64
	MaxRegionChiSquare      float64
	MinDeviationFraction    float64
	Verbose                 bool
}

// DefaultStratifiedMCConfig returns a conservative general-purpose configuration.
func DefaultStratifiedMCConfig() StratifiedMCConfig {
	return StratifiedMCConfig{
		ComponentCount:          1,
		VectorizationWidth:      1,
		RelativeAccuracyGoal:    1e-3,
		AbsoluteAccuracyGoal:    1e-12,
		MaxEvaluations:          50000,
		PartitioningSamplingKey: 47,
		FinalSamplingKey:        1,
		RefinementStrategyKey:   1,
		MaxPartitioningPasses:   5,
		MaxRegionChiSquare:      10,
		MinDeviationFraction:    0.25,
	}
}

func (c StratifiedMCConfig) validate() error {
	switch {
	case c.ComponentCount != 1:
		return fmt.Errorf("%w: only scalar integrands are supported (ncomp=%d)", ErrInvalidConfig, c.ComponentCount)
	case c.VectorizationWidth < 1:
		return fmt.Errorf("%w: vectorization width must be positive", ErrInvalidConfig)
	case c.RelativeAccuracyGoal < 0 || c.AbsoluteAccuracyGoal < 0:
		return fmt.Errorf("%w: negative accuracy goal", ErrInvalidConfig)
	case c.MaxEvaluations <= 0 || c.MinEvaluations < 0 || c.MinEvaluations > c.MaxEvaluations:
		return fmt.Errorf("%w: evaluation budget [%d, %d]", ErrInvalidConfig, c.MinEvaluations, c.MaxEvaluations)
	case c.MaxPartitioningPasses < 1:
		return fmt.Errorf("%w: max partitioning passes must be positive", ErrInvalidConfig)
	case c.BorderWidth < 0 || c.BorderWidth >= 0.25:
		return fmt.Errorf("%w: border width %g outside [0, 0.25)", ErrInvalidConfig, c.BorderWidth)
	case c.MaxRegionChiSquare < 0 || c.MinDeviationFraction < 0:
		return fmt.Errorf("%w: negative χ² or deviation bound", ErrInvalidConfig)
	}
	return nil
}
