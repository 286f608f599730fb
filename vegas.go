package lss

import (
	"errors"
	"math"
	"math/rand/v2"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// vegasStream is the PCG stream of the importance-sampling random source.
	vegasStream = 0x9e3779b97f4a7c15
	// maxVegasCalls caps the geometric growth of the call budget.
	maxVegasCalls = 1 << 40
)

// vegasState is the importance-sampling grid and random source of one Integrate call. It is
// created once per call and shared by the warm-up and every refinement call, so the grid learned
// by one call seeds the next.
type vegasState struct {
	dim, bins  int
	alpha      float64
	iterations int

	xi [][]float64 // per axis bin edges on [0, 1], bins+1 of them
	d  [][]float64 // per axis sum of squared weighted values in each bin

	rnd   distuv.Uniform
	lower []float64
	width []float64
	vol   float64

	f           func(x []float64) float64
	evaluations int

	x   []float64
	bin []int
}

// vegasEstimate is the weighted average of the iterations of one call.
type vegasEstimate struct {
	value, err, chi2 float64
}

func newVegasState(ig *Integrator, cfg ImportanceMCConfig) *vegasState {
	s := &vegasState{
		dim:        ig.dim,
		bins:       cfg.Bins,
		alpha:      cfg.Alpha,
		iterations: cfg.IterationsPerCall,
		rnd:        distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(cfg.Seed, vegasStream)},
		lower:      ig.LowerBounds(),
		width:      widths(ig.lower, ig.upper),
		x:          make([]float64, ig.dim),
		bin:        make([]int, ig.dim),
	}
	s.vol = jacobian(ig.lower, ig.upper)
	s.f = func(x []float64) float64 {
		return ig.integrand(x, ig.params)
	}
	s.xi = make([][]float64, s.dim)
	s.d = make([][]float64, s.dim)
	for j := 0; j < s.dim; j++ {
		s.xi[j] = make([]float64, s.bins+1)
		for i := range s.xi[j] {
			s.xi[j][i] = float64(i) / float64(s.bins)
		}
		s.d[j] = make([]float64, s.bins)
	}
	return s
}

// call runs the configured number of iterations with the given number of samples each and
// combines them. The grid is refined after every iteration.
func (s *vegasState) call(calls uint) vegasEstimate {
	values := make([]float64, s.iterations)
	variances := make([]float64, s.iterations)
	for it := range values {
		values[it], variances[it] = s.iterate(calls)
	}
	return combine(values, variances)
}

// combine returns the inverse-variance weighted average of the iteration estimates and the χ² per
// degree of freedom of their spread. An iteration with a zero variance, typically one which missed
// the support of the integrand, gets the mean weight of the iterations before it, or no weight
// when it comes first. Only when no iteration has a variance is the call taken as exact.
func combine(values, variances []float64) vegasEstimate {
	weights := make([]float64, len(values))
	var sumW, sumWI float64
	samples := 0
	for i, v := range variances {
		switch {
		case v > 0:
			weights[i] = 1 / v
		case sumW > 0:
			weights[i] = sumW / float64(samples)
		default:
			continue
		}
		samples++
		sumW += weights[i]
		sumWI += weights[i] * values[i]
	}
	if samples == 0 {
		if len(values) < 2 {
			return vegasEstimate{value: values[0]}
		}
		mean, variance := stat.MeanVariance(values, nil)
		return vegasEstimate{value: mean, err: math.Sqrt(variance / float64(len(values)))}
	}
	est := vegasEstimate{value: sumWI / sumW, err: math.Sqrt(1 / sumW)}
	if samples > 1 {
		var chi2 float64
		for i, w := range weights {
			δ := values[i] - est.value
			chi2 += w * δ * δ
		}
		est.chi2 = chi2 / float64(samples-1)
	}
	return est
}

// iterate samples the grid once and returns the estimate and the variance of that estimate.
func (s *vegasState) iterate(calls uint) (mean, variance float64) {
	for j := range s.d {
		for i := range s.d[j] {
			s.d[j][i] = 0
		}
	}
	nb := float64(s.bins)
	var m2 float64
	for c := uint(1); c <= calls; c++ {
		w := s.vol
		for j := 0; j < s.dim; j++ {
			y := s.rnd.Rand() * nb
			b := int(y)
			if b >= s.bins {
				b = s.bins - 1
			}
			lo, hi := s.xi[j][b], s.xi[j][b+1]
			s.x[j] = s.lower[j] + (lo+(hi-lo)*(y-float64(b)))*s.width[j]
			w *= (hi - lo) * nb
			s.bin[j] = b
		}
		fv := s.f(s.x) * w
		// Welford update of the running mean and squared deviations.
		δ := fv - mean
		mean += δ / float64(c)
		m2 += δ * (fv - mean)
		for j, b := range s.bin {
			s.d[j][b] += fv * fv
		}
	}
	s.evaluations += int(calls)
	n := float64(calls)
	variance = m2 / (n - 1) / n
	s.refine()
	return mean, variance
}

// refine moves the bin edges so that each bin carries the same share of the smoothed squared
// weighted values, damped by alpha.
func (s *vegasState) refine() {
	weight := make([]float64, s.bins)
	edges := make([]float64, s.bins+1)
	for j := 0; j < s.dim; j++ {
		d := s.d[j]
		if s.bins > 1 {
			oldg, newg := d[0], d[1]
			d[0] = (oldg + newg) / 2
			for i := 1; i < s.bins-1; i++ {
				rc := oldg + newg
				oldg = newg
				newg = d[i+1]
				d[i] = (rc + newg) / 3
			}
			d[s.bins-1] = (newg + oldg) / 2
		}
		var total float64
		for _, v := range d {
			total += v
		}
		if total <= 0 || !finite(total) {
			continue
		}
		var totWeight float64
		for i, v := range d {
			weight[i] = 0
			if v > 0 {
				r := total / v
				if r <= 1 {
					weight[i] = 1
				} else {
					weight[i] = math.Pow((r-1)/r/math.Log(r), s.alpha)
				}
			}
			totWeight += weight[i]
		}
		perBin := totWeight / float64(s.bins)
		xi := s.xi[j]
		var xold, xnew, dw float64
		k := 1
		for i := 0; i < s.bins; i++ {
			dw += weight[i]
			xold = xnew
			xnew = xi[i+1]
			for dw > perBin && k < s.bins {
				dw -= perBin
				edges[k] = xnew - (xnew-xold)*dw/weight[i]
				k++
			}
		}
		for ; k < s.bins; k++ {
			edges[k] = xi[k]
		}
		for i := 1; i < s.bins; i++ {
			xi[i] = edges[i]
		}
		xi[0], xi[s.bins] = 0, 1
	}
}

// runImportanceMC is the adaptive loop: one warm-up call seeds the grid, then refinement calls
// run until the relative error and χ² gates both pass or MaxIterations calls were made.
//
// The relative error gate is checked first and, when it fails, the χ² gate is not looked at for
// that iteration: the call budget grows and the loop moves on, even on the last iteration.
func runImportanceMC(ig *Integrator) (Result, error) {
	cfg := *ig.importance
	logger := kitlog.With(ig.log(), "subsys", "vegas")
	s := newVegasState(ig, cfg)

	var est vegasEstimate
	if cfg.WarmUpCalls > 0 {
		est = s.call(cfg.WarmUpCalls)
		if cfg.Verbose {
			level.Info(logger).Log("stage", "warm-up", "calls", cfg.WarmUpCalls, "value", est.value, "error", est.err, "chi2", est.chi2)
		}
	}

	res := Result{}
	for iter := 0; ; {
		if iter == cfg.MaxIterations {
			if cfg.Verbose {
				level.Warn(logger).Log("status", "exhausted", "iterations", iter, "value", est.value, "error", est.err, "chi2", est.chi2)
			}
			break
		}
		iter++
		res.Iterations = iter
		est = s.call(cfg.MainCalls)
		res.History = append(res.History, Iteration{Calls: cfg.MainCalls, Value: est.value, Error: est.err, ChiSquare: est.chi2})
		if cfg.Verbose {
			level.Info(logger).Log("iteration", iter, "calls", cfg.MainCalls, "value", est.value, "error", est.err, "chi2", est.chi2)
		}
		if cfg.RelativeErrorTarget != 0 && relativeError(est.value, est.err) > cfg.RelativeErrorTarget {
			cfg.MainCalls = growCalls(cfg.MainCalls, cfg.CallGrowthFactor)
			continue
		}
		if math.Abs(est.chi2-1) < cfg.ChiSquareTolerance {
			res.Converged = true
			if cfg.Verbose {
				level.Info(logger).Log("status", "converged", "iterations", iter)
			}
			break
		}
	}
	res.Value, res.Error, res.Extra = est.value, est.err, est.chi2
	res.Evaluations = s.evaluations
	if !finite(res.Value) || !finite(res.Error) {
		return res, &BackendError{Routine: ImportanceMC, Err: errors.New("non-finite integrand estimate")}
	}
	return res, nil
}

func growCalls(calls uint, factor float64) uint {
	grown := scaleCalls(calls, factor)
	if grown > maxVegasCalls {
		return maxVegasCalls
	}
	return grown
}

// PlainImportanceMC integrates f with a single importance-sampling call of MainCalls samples on
// a fresh grid: no warm-up and no refinement loop. The routine selected in ig is ignored but its
// ImportanceMC configuration must be set. Converged reports whether the gates of the adaptive loop
// would have accepted this estimate.
func PlainImportanceMC(f Integrand, ig *Integrator) (Result, error) {
	if f != nil {
		ig.integrand = f
	}
	if err := ig.checkFor("PlainImportanceMC", ImportanceMC); err != nil {
		return Result{Routine: ImportanceMC}, err
	}
	cfg := *ig.importance
	s := newVegasState(ig, cfg)
	est := s.call(cfg.MainCalls)
	res := Result{
		Value:       est.value,
		Error:       est.err,
		Extra:       est.chi2,
		Routine:     ImportanceMC,
		Evaluations: s.evaluations,
		Converged: (cfg.RelativeErrorTarget == 0 || relativeError(est.value, est.err) <= cfg.RelativeErrorTarget) &&
			math.Abs(est.chi2-1) < cfg.ChiSquareTolerance,
	}
	if cfg.Verbose {
		level.Info(kitlog.With(ig.log(), "subsys", "vegas")).Log("stage", "plain", "calls", cfg.MainCalls, "value", est.value, "error", est.err, "chi2", est.chi2)
	}
	if !finite(res.Value) || !finite(res.Error) {
		return res, &BackendError{Routine: ImportanceMC, Err: errors.New("non-finite integrand estimate")}
	}
	return res, nil
}
