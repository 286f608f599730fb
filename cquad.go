package lss

import (
	"container/heap"
	"errors"
	"math"

	"github.com/go-kit/kit/log/level"
	"gonum.org/v1/gonum/integrate/quad"
)

// Gauss-Legendre orders of the two rules compared on each panel. The difference between them is
// the panel's error estimate.
const (
	coarseOrder = 10
	fineOrder   = 21
)

// panel is one subinterval of the bisection.
type panel struct {
	a, b       float64
	value, err float64
}

// panels is a max-heap on the error estimate.
type panels []panel

func (p panels) Len() int            { return len(p) }
func (p panels) Less(i, j int) bool  { return p[i].err > p[j].err }
func (p panels) Swap(i, j int)       { p[i], p[j] = p[j], p[i] }
func (p *panels) Push(x interface{}) { *p = append(*p, x.(panel)) }
func (p *panels) Pop() interface{} {
	old := *p
	n := len(old)
	x := old[n-1]
	*p = old[:n-1]
	return x
}

func (p panels) totals() (value, err float64) {
	for _, pn := range p {
		value += pn.value
		err += pn.err
	}
	return
}

// quadratureKernel is the 1-D adaptive bisection. It only sees a func(float64) float64.
type quadratureKernel struct {
	f           func(float64) float64
	evaluations int
}

func (k *quadratureKernel) panel(a, b float64) panel {
	lo := quad.Fixed(k.f, a, b, coarseOrder, quad.Legendre{}, 0)
	hi := quad.Fixed(k.f, a, b, fineOrder, quad.Legendre{}, 0)
	k.evaluations += coarseOrder + fineOrder
	return panel{a: a, b: b, value: hi, err: math.Abs(hi - lo)}
}

// integrate bisects the worst panel until the error goal is met or limit panels exist.
func (k *quadratureKernel) integrate(a, b float64, cfg QuadratureConfig) (value, err float64, converged bool, fail error) {
	h := &panels{k.panel(a, b)}
	for {
		value, err = h.totals()
		if !finite(value) || !finite(err) {
			return value, err, false, errors.New("non-finite integrand estimate")
		}
		if err <= math.Max(cfg.AbsoluteError, cfg.RelativeError*math.Abs(value)) {
			return value, err, true, nil
		}
		if uint(h.Len()) >= cfg.SubintervalLimit {
			return value, err, false, nil
		}
		worst := heap.Pop(h).(panel)
		mid := worst.a + (worst.b-worst.a)/2
		if mid <= worst.a || mid >= worst.b {
			// Cannot split below the floating point resolution.
			heap.Push(h, worst)
			return value, err, false, nil
		}
		heap.Push(h, k.panel(worst.a, mid))
		heap.Push(h, k.panel(mid, worst.b))
	}
}

// runQuadrature adapts the N-D integrand to the 1-D kernel over [lower[0], upper[0]].
func runQuadrature(ig *Integrator) (Result, error) {
	cfg := *ig.quadrature
	logger := ig.log()
	a, b := ig.lower[0], ig.upper[0]
	if a == b {
		return Result{Converged: true}, nil
	}
	point := make([]float64, 1)
	k := &quadratureKernel{f: func(x float64) float64 {
		point[0] = x
		return ig.integrand(point, ig.params)
	}}
	value, err, converged, fail := k.integrate(a, b, cfg)
	res := Result{Value: value, Error: err, Evaluations: k.evaluations, Converged: converged}
	if fail != nil {
		return res, &BackendError{Routine: Quadrature, Err: fail}
	}
	if cfg.Verbose {
		if converged {
			level.Info(logger).Log("subsys", "cquad", "status", "converged", "value", value, "error", err, "evals", k.evaluations)
		} else {
			level.Warn(logger).Log("subsys", "cquad", "status", "subinterval limit reached", "limit", cfg.SubintervalLimit, "value", value, "error", err)
		}
	}
	return res, nil
}
