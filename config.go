package lss

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ConfigEnv names the environment variable holding the directory of conf.toml.
const ConfigEnv = "LSS_CONFIG"

// Scenario is a grid run read from a TOML file.
type Scenario struct {
	// [general]
	OutputDir string
	Filename  string
	Timestamp bool
	Workers   int
	Verbose   bool
	Integrand string

	// [integration]
	Routine   Routine
	Dimension int
	Lower     []float64
	Upper     []float64

	Quadrature   QuadratureConfig
	ImportanceMC ImportanceMCConfig
	StratifiedMC StratifiedMCConfig

	// [grid]
	Z      []float64
	KMin   float64
	KMax   float64
	KCount int
	Mu     []float64
}

// DefaultScenarioPath returns $LSS_CONFIG/conf.toml.
func DefaultScenarioPath() (string, error) {
	dir := os.Getenv(ConfigEnv)
	if dir == "" {
		return "", fmt.Errorf("environment variable `%s` is missing or empty", ConfigEnv)
	}
	return filepath.Join(dir, "conf.toml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.workers", 0)
	v.SetDefault("general.integrand", "gaussian")
	v.SetDefault("general.output_dir", ".")
	v.SetDefault("integration.routine", ImportanceMCName)

	q := DefaultQuadratureConfig()
	v.SetDefault("cquad.relative_error", q.RelativeError)
	v.SetDefault("cquad.absolute_error", q.AbsoluteError)
	v.SetDefault("cquad.subinterval_limit", q.SubintervalLimit)

	m := DefaultImportanceMCConfig()
	v.SetDefault("vegas.warm_up_calls", m.WarmUpCalls)
	v.SetDefault("vegas.main_calls", m.MainCalls)
	v.SetDefault("vegas.call_growth_factor", m.CallGrowthFactor)
	v.SetDefault("vegas.max_iterations", m.MaxIterations)
	v.SetDefault("vegas.chi_square_tolerance", m.ChiSquareTolerance)
	v.SetDefault("vegas.relative_error_target", m.RelativeErrorTarget)
	v.SetDefault("vegas.iterations_per_call", m.IterationsPerCall)
	v.SetDefault("vegas.alpha", m.Alpha)
	v.SetDefault("vegas.bins", m.Bins)
	v.SetDefault("vegas.seed", m.Seed)

	s := DefaultStratifiedMCConfig()
	v.SetDefault("divonne.component_count", s.ComponentCount)
	v.SetDefault("divonne.vectorization_width", s.VectorizationWidth)
	v.SetDefault("divonne.relative_accuracy_goal", s.RelativeAccuracyGoal)
	v.SetDefault("divonne.absolute_accuracy_goal", s.AbsoluteAccuracyGoal)
	v.SetDefault("divonne.random_seed", s.RandomSeed)
	v.SetDefault("divonne.min_evaluations", s.MinEvaluations)
	v.SetDefault("divonne.max_evaluations", s.MaxEvaluations)
	v.SetDefault("divonne.partitioning_sampling_key", s.PartitioningSamplingKey)
	v.SetDefault("divonne.final_sampling_key", s.FinalSamplingKey)
	v.SetDefault("divonne.refinement_strategy_key", s.RefinementStrategyKey)
	v.SetDefault("divonne.max_partitioning_passes", s.MaxPartitioningPasses)
	v.SetDefault("divonne.border_width", s.BorderWidth)
	v.SetDefault("divonne.max_region_chi_square", s.MaxRegionChiSquare)
	v.SetDefault("divonne.min_deviation_fraction", s.MinDeviationFraction)

	v.SetDefault("grid.z", []float64{0})
	v.SetDefault("grid.mu", []float64{0})
	v.SetDefault("grid.kcount", 1)
}

// floatSlice reads a TOML array of numbers. A single number is a one element axis.
func floatSlice(v *viper.Viper, key string) ([]float64, error) {
	val := v.Get(key)
	switch x := val.(type) {
	case []float64:
		return append([]float64(nil), x...), nil
	case []interface{}:
		out := make([]float64, len(x))
		for i, e := range x {
			f, err := cast.ToFloat64E(e)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			out[i] = f
		}
		return out, nil
	}
	f, err := cast.ToFloat64E(val)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return []float64{f}, nil
}

// LoadScenario reads the TOML scenario at path. Keys left out take the routine defaults.
func LoadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return scenarioFrom(v)
}

func scenarioFrom(v *viper.Viper) (*Scenario, error) {
	const op = "LoadScenario"
	sc := &Scenario{
		OutputDir: v.GetString("general.output_dir"),
		Filename:  v.GetString("general.filename"),
		Timestamp: v.GetBool("general.timestamp"),
		Workers:   v.GetInt("general.workers"),
		Verbose:   v.GetBool("general.verbose"),
		Integrand: v.GetString("general.integrand"),
		Dimension: v.GetInt("integration.dimension"),
		KMin:      v.GetFloat64("grid.kmin"),
		KMax:      v.GetFloat64("grid.kmax"),
		KCount:    v.GetInt("grid.kcount"),
	}
	r, err := ParseRoutine(v.GetString("integration.routine"))
	if err != nil {
		return nil, configErrf(op, ErrUnknownRoutine, "%q", v.GetString("integration.routine"))
	}
	sc.Routine = r

	for key, dst := range map[string]*[]float64{
		"integration.lower": &sc.Lower,
		"integration.upper": &sc.Upper,
		"grid.z":            &sc.Z,
		"grid.mu":           &sc.Mu,
	} {
		if v.Get(key) == nil {
			continue
		}
		if *dst, err = floatSlice(v, key); err != nil {
			return nil, configErrf(op, ErrInvalidConfig, "%v", err)
		}
	}
	if !v.IsSet("integration.dimension") {
		sc.Dimension = len(sc.Lower)
	}

	verbose := func(table string) bool {
		if v.IsSet(table + ".verbose") {
			return v.GetBool(table + ".verbose")
		}
		return sc.Verbose
	}
	sc.Quadrature = QuadratureConfig{
		RelativeError:    v.GetFloat64("cquad.relative_error"),
		AbsoluteError:    v.GetFloat64("cquad.absolute_error"),
		SubintervalLimit: v.GetUint("cquad.subinterval_limit"),
		Verbose:          verbose("cquad"),
	}
	sc.ImportanceMC = ImportanceMCConfig{
		WarmUpCalls:         v.GetUint("vegas.warm_up_calls"),
		MainCalls:           v.GetUint("vegas.main_calls"),
		CallGrowthFactor:    v.GetFloat64("vegas.call_growth_factor"),
		MaxIterations:       v.GetInt("vegas.max_iterations"),
		ChiSquareTolerance:  v.GetFloat64("vegas.chi_square_tolerance"),
		RelativeErrorTarget: v.GetFloat64("vegas.relative_error_target"),
		Verbose:             verbose("vegas"),
		IterationsPerCall:   v.GetInt("vegas.iterations_per_call"),
		Alpha:               v.GetFloat64("vegas.alpha"),
		Bins:                v.GetInt("vegas.bins"),
		Seed:                v.GetUint64("vegas.seed"),
	}
	sc.StratifiedMC = StratifiedMCConfig{
		ComponentCount:          v.GetInt("divonne.component_count"),
		VectorizationWidth:      v.GetInt("divonne.vectorization_width"),
		RelativeAccuracyGoal:    v.GetFloat64("divonne.relative_accuracy_goal"),
		AbsoluteAccuracyGoal:    v.GetFloat64("divonne.absolute_accuracy_goal"),
		RandomSeed:              v.GetInt("divonne.random_seed"),
		MinEvaluations:          v.GetInt("divonne.min_evaluations"),
		MaxEvaluations:          v.GetInt("divonne.max_evaluations"),
		PartitioningSamplingKey: v.GetInt("divonne.partitioning_sampling_key"),
		FinalSamplingKey:        v.GetInt("divonne.final_sampling_key"),
		RefinementStrategyKey:   v.GetInt("divonne.refinement_strategy_key"),
		MaxPartitioningPasses:   v.GetInt("divonne.max_partitioning_passes"),
		BorderWidth:             v.GetFloat64("divonne.border_width"),
		MaxRegionChiSquare:      v.GetFloat64("divonne.max_region_chi_square"),
		MinDeviationFraction:    v.GetFloat64("divonne.min_deviation_fraction"),
		Verbose:                 verbose("divonne"),
	}
	if _, err := sc.Integrator(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Integrator builds the template Integrator of the scenario: bounds, routine and all three
// configurations, without integrand. The selected routine is validated.
func (sc *Scenario) Integrator() (*Integrator, error) {
	const op = "Scenario"
	if sc.Dimension <= 0 {
		return nil, configErrf(op, ErrBadDimension, "%d", sc.Dimension)
	}
	ig := NewIntegrator()
	if err := ig.SetBounds(sc.Dimension, sc.Upper, sc.Lower); err != nil {
		return nil, err
	}
	if err := ig.SetRoutineID(sc.Routine); err != nil {
		return nil, err
	}
	ig.SetQuadratureConfig(&sc.Quadrature)
	ig.SetImportanceMCConfig(&sc.ImportanceMC)
	ig.SetStratifiedMCConfig(&sc.StratifiedMC)
	if err := ig.checkSetup(op, sc.Routine); err != nil {
		return nil, err
	}
	return ig, nil
}

// Grid returns the grid points: k log-spaced from kmin to kmax.
func (sc *Scenario) Grid() ([]GridPoint, error) {
	if sc.KCount < 1 || sc.KMin <= 0 || sc.KMax < sc.KMin {
		return nil, configErrf("Grid", ErrInvalidConfig, "k axis [%g, %g] with %d points", sc.KMin, sc.KMax, sc.KCount)
	}
	if len(sc.Z) == 0 || len(sc.Mu) == 0 {
		return nil, configErrf("Grid", ErrInvalidConfig, "empty z or μ axis")
	}
	return NewGrid(sc.Z, LogSpace(sc.KMin, sc.KMax, sc.KCount), sc.Mu), nil
}

// Export returns the export configuration of the scenario.
func (sc *Scenario) Export() ExportConfig {
	return ExportConfig{Filename: sc.Filename, OutputDir: sc.OutputDir, Timestamp: sc.Timestamp}
}
