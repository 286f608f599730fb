package lss

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// divonneStream is the PCG stream of the stratified samplers.
const divonneStream = 0x2545f4914f6cdd1d

// boxAdapter maps points of the unit cube onto the integration box and scales the integrand by
// the Jacobian of that map. It is the only place the stratified kernel touches the caller's
// integrand.
type boxAdapter struct {
	f           Integrand
	params      interface{}
	lower       []float64
	width       []float64
	jac         float64
	vector      int
	evaluations int

	point []float64
}

func newBoxAdapter(ig *Integrator, vector int) *boxAdapter {
	return &boxAdapter{
		f:      ig.integrand,
		params: ig.params,
		lower:  ig.LowerBounds(),
		width:  widths(ig.lower, ig.upper),
		jac:    jacobian(ig.lower, ig.upper),
		vector: vector,
		point:  make([]float64, ig.dim),
	}
}

// eval writes J*f(lower + u*width) into out for every row u of units, in batches of the
// vectorization width.
func (a *boxAdapter) eval(units [][]float64, out []float64) {
	for start := 0; start < len(units); start += a.vector {
		end := start + a.vector
		if end > len(units) {
			end = len(units)
		}
		for i := start; i < end; i++ {
			mapUnit(a.point, units[i], a.lower, a.width)
			out[i] = a.f(a.point, a.params) * a.jac
		}
		a.evaluations += end - start
	}
}

// region is a sub-box of the unit cube with its exploration (phase 1) and final (phase 2)
// estimates.
type region struct {
	lo, hi []float64

	value, err  float64 // exploration estimate
	final, ferr float64 // final estimate
	chi2        float64 // discrepancy between the two phases
	split       int     // preferred cut axis
	refined     bool
}

func (r *region) volume() float64 {
	v := 1.0
	for i := range r.lo {
		v *= r.hi[i] - r.lo[i]
	}
	return v
}

// halve cuts r at the middle of axis d.
func (r *region) halve(d int) (*region, *region) {
	mid := r.lo[d] + (r.hi[d]-r.lo[d])/2
	left := &region{lo: append([]float64(nil), r.lo...), hi: append([]float64(nil), r.hi...)}
	right := &region{lo: append([]float64(nil), r.lo...), hi: append([]float64(nil), r.hi...)}
	left.hi[d] = mid
	right.lo[d] = mid
	return left, right
}

// stratifiedKernel runs the partitioning, the final integration and the refinement on the unit
// cube. Everything it knows about the integrand goes through the adapter.
type stratifiedKernel struct {
	cfg    StratifiedMCConfig
	dim    int
	src    rand.Source
	unit   *distmv.Uniform
	adapt  *boxAdapter
	border float64
	logger kitlog.Logger
}

// points returns the sample count of a region for a sampling key.
func (k *stratifiedKernel) points(key int) int {
	n := key
	if n < 0 {
		n = -n
	}
	if floor := 4 * (k.dim + 1); n < floor {
		n = floor
	}
	return n
}

// cost is the worst case number of integrand calls for one region sample with key.
func (k *stratifiedKernel) cost(key int) int {
	if k.border > 0 {
		return 2 * k.points(key)
	}
	return k.points(key)
}

func (k *stratifiedKernel) sampler(key int) samplemv.Sampler {
	if key < 0 {
		return samplemv.LatinHypercube{Q: k.unit, Src: k.src}
	}
	return samplemv.Halton{Kind: samplemv.Owen, Q: k.unit, Src: k.src}
}

// sample draws a point set in r with key and returns the region estimate, its error and the cut
// axis with the largest difference between the means of the two halves.
func (k *stratifiedKernel) sample(r *region, key int) (value, err float64, split int) {
	n := k.points(key)
	batch := mat.NewDense(n, k.dim, nil)
	k.sampler(key).Sample(batch)

	units := make([][]float64, n)
	for i := range units {
		u := batch.RawRowView(i)
		for j := range u {
			u[j] = r.lo[j] + u[j]*(r.hi[j]-r.lo[j])
		}
		units[i] = u
	}
	fv := k.evalBordered(units)

	mean, variance := stat.MeanVariance(fv, nil)
	vol := r.volume()
	value = vol * mean
	err = vol * math.Sqrt(variance/float64(n))

	split = k.cutAxis(r, units, fv)
	return value, err, split
}

// evalBordered evaluates the integrand at the points, replacing those in the border of the unit
// cube by a linear extrapolation from the nearest interior point and its mirror image.
func (k *stratifiedKernel) evalBordered(units [][]float64) []float64 {
	out := make([]float64, len(units))
	if k.border == 0 {
		k.adapt.eval(units, out)
		return out
	}
	var inner, mirror [][]float64
	var at []int
	for i, u := range units {
		p := make([]float64, k.dim)
		moved := false
		for j, x := range u {
			p[j] = math.Min(math.Max(x, k.border), 1-k.border)
			moved = moved || p[j] != x
		}
		if !moved {
			continue
		}
		m := make([]float64, k.dim)
		for j := range m {
			m[j] = 2*p[j] - u[j]
		}
		inner = append(inner, p)
		mirror = append(mirror, m)
		at = append(at, i)
	}
	interior := make([][]float64, 0, len(units)-len(at))
	idx := make([]int, 0, len(units)-len(at))
	next := 0
	for i, u := range units {
		if next < len(at) && at[next] == i {
			next++
			continue
		}
		interior = append(interior, u)
		idx = append(idx, i)
	}
	vals := make([]float64, len(interior))
	k.adapt.eval(interior, vals)
	for n, i := range idx {
		out[i] = vals[n]
	}
	if len(at) > 0 {
		fi := make([]float64, len(at))
		fm := make([]float64, len(at))
		k.adapt.eval(inner, fi)
		k.adapt.eval(mirror, fm)
		for n, i := range at {
			out[i] = 2*fi[n] - fm[n]
		}
	}
	return out
}

// cutAxis returns the axis along which the halves of r differ most, the widest axis on ties.
func (k *stratifiedKernel) cutAxis(r *region, units [][]float64, fv []float64) int {
	best, bestScore, bestWidth := 0, -1.0, -1.0
	for d := 0; d < k.dim; d++ {
		mid := r.lo[d] + (r.hi[d]-r.lo[d])/2
		var sl, sh, nl, nh float64
		for i, u := range units {
			if u[d] < mid {
				sl += fv[i]
				nl++
			} else {
				sh += fv[i]
				nh++
			}
		}
		score := 0.0
		if nl > 0 && nh > 0 {
			score = math.Abs(sl/nl - sh/nh)
		}
		w := r.hi[d] - r.lo[d]
		if score > bestScore || (score == bestScore && w > bestWidth) {
			best, bestScore, bestWidth = d, score, w
		}
	}
	return best
}

func (k *stratifiedKernel) goal(value, err float64) bool {
	return err <= math.Max(k.cfg.AbsoluteAccuracyGoal, k.cfg.RelativeAccuracyGoal*math.Abs(value))
}

func totals(regions []*region, final bool) (value, err float64) {
	var v2 float64
	for _, r := range regions {
		if final {
			value += r.final
			v2 += r.ferr * r.ferr
		} else {
			value += r.value
			v2 += r.err * r.err
		}
	}
	return value, math.Sqrt(v2)
}

// partition splits regions until the exploration estimate meets the goals, the budget left for
// the final phase runs out or MaxPartitioningPasses passes in a row brought no improvement.
// Each pass cuts every region whose error is at least MinDeviationFraction of the largest one.
func (k *stratifiedKernel) partition() ([]*region, error) {
	c1, c2 := k.cost(k.cfg.PartitioningSamplingKey), k.cost(k.cfg.FinalSamplingKey)
	if c1+c2 > k.cfg.MaxEvaluations {
		return nil, fmt.Errorf("evaluation budget %d below one exploration and one final sample (%d)", k.cfg.MaxEvaluations, c1+c2)
	}
	root := &region{lo: make([]float64, k.dim), hi: make([]float64, k.dim)}
	for i := range root.hi {
		root.hi[i] = 1
	}
	root.value, root.err, root.split = k.sample(root, k.cfg.PartitioningSamplingKey)
	regions := []*region{root}

	bestErr := root.err
	stale := 0
	for pass := 1; ; pass++ {
		value, err := totals(regions, false)
		if !finite(value) || !finite(err) {
			return regions, errors.New("non-finite integrand estimate")
		}
		if k.adapt.evaluations >= k.cfg.MinEvaluations && k.goal(value, err) {
			break
		}
		if stale >= k.cfg.MaxPartitioningPasses {
			break
		}
		var worst float64
		for _, r := range regions {
			worst = math.Max(worst, r.err)
		}
		if worst == 0 {
			break
		}
		cut := false
		next := make([]*region, 0, 2*len(regions))
		for i, r := range regions {
			room := k.cfg.MaxEvaluations - k.adapt.evaluations - (len(next)+len(regions)-i+1)*c2
			if r.err < k.cfg.MinDeviationFraction*worst || room < 2*c1 {
				next = append(next, r)
				continue
			}
			left, right := r.halve(r.split)
			left.value, left.err, left.split = k.sample(left, k.cfg.PartitioningSamplingKey)
			right.value, right.err, right.split = k.sample(right, k.cfg.PartitioningSamplingKey)
			next = append(next, left, right)
			cut = true
		}
		regions = next
		if !cut {
			break
		}
		_, err = totals(regions, false)
		if err < bestErr {
			bestErr = err
			stale = 0
		} else {
			stale++
		}
		level.Debug(k.logger).Log("pass", pass, "regions", len(regions), "error", err, "evals", k.adapt.evaluations)
	}
	return regions, nil
}

// integrate runs the final phase on every region, then samples once more the regions whose two
// estimates disagree by more than MaxRegionChiSquare when the refinement key asks for it.
func (k *stratifiedKernel) integrate(regions []*region) {
	for _, r := range regions {
		r.final, r.ferr, _ = k.sample(r, k.cfg.FinalSamplingKey)
		r.chi2 = discrepancy(r.value, r.err, r.final, r.ferr)
	}
	if k.cfg.RefinementStrategyKey == 0 {
		return
	}
	c2 := k.cost(k.cfg.FinalSamplingKey)
	for _, r := range regions {
		if r.chi2 <= k.cfg.MaxRegionChiSquare {
			continue
		}
		if k.cfg.MaxEvaluations-k.adapt.evaluations < c2 {
			level.Debug(k.logger).Log("refinement", "skipped", "reason", "budget")
			return
		}
		v, e, _ := k.sample(r, k.cfg.FinalSamplingKey)
		r.final, r.ferr = weighted(r.final, r.ferr, v, e)
		r.refined = true
		r.chi2 = discrepancy(r.value, r.err, r.final, r.ferr)
	}
}

// discrepancy is the χ² of two independent estimates of the same quantity.
func discrepancy(v1, e1, v2, e2 float64) float64 {
	s := e1*e1 + e2*e2
	d := v1 - v2
	if s == 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return d * d / s
}

// weighted combines two estimates by inverse variance. An exact estimate wins.
func weighted(v1, e1, v2, e2 float64) (float64, float64) {
	switch {
	case e1 == 0:
		return v1, 0
	case e2 == 0:
		return v2, 0
	}
	w1, w2 := 1/(e1*e1), 1/(e2*e2)
	return (w1*v1 + w2*v2) / (w1 + w2), math.Sqrt(1 / (w1 + w2))
}

// runStratifiedMC integrates over the box by stratified sampling of the unit cube. Extra is the χ²
// probability of the discrepancy between the exploration and final estimates over all regions.
func runStratifiedMC(ig *Integrator) (Result, error) {
	cfg := *ig.stratified
	logger := kitlog.With(ig.log(), "subsys", "divonne")
	src := rand.NewPCG(uint64(cfg.RandomSeed), divonneStream)
	k := &stratifiedKernel{
		cfg:    cfg,
		dim:    ig.dim,
		src:    src,
		unit:   distmv.NewUnitUniform(ig.dim, src),
		adapt:  newBoxAdapter(ig, cfg.VectorizationWidth),
		border: cfg.BorderWidth,
		logger: logger,
	}

	regions, err := k.partition()
	if err != nil {
		return Result{Evaluations: k.adapt.evaluations}, &BackendError{Routine: StratifiedMC, Err: err}
	}
	k.integrate(regions)

	value, errEst := totals(regions, true)
	var chi2 float64
	refined := 0
	for _, r := range regions {
		chi2 += r.chi2
		if r.refined {
			refined++
		}
	}
	res := Result{
		Value:       value,
		Error:       errEst,
		Extra:       distuv.ChiSquared{K: float64(len(regions))}.CDF(chi2),
		Evaluations: k.adapt.evaluations,
		Converged:   k.goal(value, errEst),
	}
	if !finite(res.Value) || !finite(res.Error) {
		return res, &BackendError{Routine: StratifiedMC, Err: errors.New("non-finite integrand estimate")}
	}
	if cfg.Verbose {
		lvl := level.Info
		if !res.Converged {
			lvl = level.Warn
		}
		lvl(logger).Log("regions", len(regions), "refined", refined, "value", res.Value, "error", res.Error, "prob", res.Extra, "evals", res.Evaluations)
	}
	return res, nil
}
