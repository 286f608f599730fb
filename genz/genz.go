// Package genz provides the Genz test integrand families with their exact integrals over the unit
// cube.
package genz

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	lss "github.com/TjarkHarder/fisher-lss-sub001"
)

// Family is one of the Genz integrand families.
type Family uint8

// The families. A controls the difficulty along each axis and U the offset.
const (
	Oscillatory   Family = iota // cos(2πu₁ + Σ aᵢxᵢ)
	ProductPeak                 // ∏ 1/(aᵢ⁻² + (xᵢ - uᵢ)²)
	Gaussian                    // exp(-Σ aᵢ²(xᵢ - uᵢ)²)
	Continuous                  // exp(-Σ aᵢ|xᵢ - uᵢ|)
	Discontinuous               // exp(Σ aᵢxᵢ) for x₁ ≤ u₁, x₂ ≤ u₂, zero elsewhere
)

var names = [...]string{"oscillatory", "product_peak", "gaussian", "continuous", "discontinuous"}

func (f Family) String() string {
	if int(f) < len(names) {
		return names[f]
	}
	return fmt.Sprintf("family(%d)", f)
}

// ParseFamily returns the family with the given name, ignoring case and dashes.
func ParseFamily(name string) (Family, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for i, known := range names {
		if n == known {
			return Family(i), nil
		}
	}
	return 0, fmt.Errorf("genz: unknown family %q", name)
}

// Function is a Genz integrand on [0, 1]^len(A).
type Function struct {
	Family Family
	A      []float64
	U      []float64
}

// New returns a function of the family. a and u must have the same positive length; every U must
// lie in [0, 1].
func New(f Family, a, u []float64) (*Function, error) {
	if int(f) >= len(names) {
		return nil, fmt.Errorf("genz: unknown family %d", f)
	}
	if len(a) == 0 || len(a) != len(u) {
		return nil, errors.New("genz: a and u must have the same positive length")
	}
	for i := range u {
		if u[i] < 0 || u[i] > 1 {
			return nil, fmt.Errorf("genz: u[%d]=%g outside [0, 1]", i, u[i])
		}
		if a[i] == 0 && (f == ProductPeak || f == Gaussian) {
			return nil, fmt.Errorf("genz: %s needs non-zero a (a[%d]=0)", f, i)
		}
	}
	return &Function{Family: f, A: append([]float64(nil), a...), U: append([]float64(nil), u...)}, nil
}

// Fill returns a slice of n copies of v.
func Fill(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// Dim returns the dimension of the function.
func (fn *Function) Dim() int {
	return len(fn.A)
}

// Eval returns the function at x.
func (fn *Function) Eval(x []float64) float64 {
	switch fn.Family {
	case Oscillatory:
		s := 2 * math.Pi * fn.U[0]
		for i, a := range fn.A {
			s += a * x[i]
		}
		return math.Cos(s)
	case ProductPeak:
		p := 1.0
		for i, a := range fn.A {
			d := x[i] - fn.U[i]
			p /= 1/(a*a) + d*d
		}
		return p
	case Gaussian:
		var s float64
		for i, a := range fn.A {
			d := x[i] - fn.U[i]
			s += a * a * d * d
		}
		return math.Exp(-s)
	case Continuous:
		var s float64
		for i, a := range fn.A {
			s += a * math.Abs(x[i]-fn.U[i])
		}
		return math.Exp(-s)
	case Discontinuous:
		for i := 0; i < 2 && i < len(x); i++ {
			if x[i] > fn.U[i] {
				return 0
			}
		}
		var s float64
		for i, a := range fn.A {
			s += a * x[i]
		}
		return math.Exp(s)
	}
	return math.NaN()
}

// Exact returns the integral of the function over the unit cube.
func (fn *Function) Exact() float64 {
	switch fn.Family {
	case Oscillatory:
		v := cmplx.Exp(complex(0, 2*math.Pi*fn.U[0]))
		for _, a := range fn.A {
			if a != 0 {
				v *= (cmplx.Exp(complex(0, a)) - 1) / complex(0, a)
			}
		}
		return real(v)
	case ProductPeak:
		p := 1.0
		for i, a := range fn.A {
			p *= a * (math.Atan(a*(1-fn.U[i])) + math.Atan(a*fn.U[i]))
		}
		return p
	case Gaussian:
		p := 1.0
		for i, a := range fn.A {
			p *= math.Sqrt(math.Pi) / (2 * a) * (math.Erf(a*(1-fn.U[i])) + math.Erf(a*fn.U[i]))
		}
		return p
	case Continuous:
		p := 1.0
		for i, a := range fn.A {
			if a == 0 {
				continue
			}
			p *= (2 - math.Exp(-a*fn.U[i]) - math.Exp(-a*(1-fn.U[i]))) / a
		}
		return p
	case Discontinuous:
		p := 1.0
		for i, a := range fn.A {
			c := 1.0
			if i < 2 {
				c = fn.U[i]
			}
			if a == 0 {
				p *= c
			} else {
				p *= math.Expm1(a*c) / a
			}
		}
		return p
	}
	return math.NaN()
}

// Integrand adapts the function to the integrator. The params blob is ignored.
func (fn *Function) Integrand() lss.Integrand {
	return func(x []float64, _ interface{}) float64 {
		return fn.Eval(x)
	}
}

func (fn *Function) String() string {
	return fmt.Sprintf("%s a=%v u=%v", fn.Family, fn.A, fn.U)
}
