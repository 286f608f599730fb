package lss

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func product(x []float64, _ interface{}) float64 { return x[0] * x[1] }

func vegasOn(t *testing.T, cfg ImportanceMCConfig) *Integrator {
	ig := unitSquare(t, "vegas")
	ig.SetImportanceMCConfig(&cfg)
	return ig
}

func smallVegas() ImportanceMCConfig {
	cfg := DefaultImportanceMCConfig()
	cfg.WarmUpCalls = 2000
	cfg.MainCalls = 5000
	cfg.MaxIterations = 6
	cfg.RelativeErrorTarget = 0
	cfg.Seed = 7
	return cfg
}

func TestImportanceMCProduct(t *testing.T) {
	cfg := smallVegas()
	cfg.RelativeErrorTarget = 1e-2
	res, err := Integrate(product, vegasOn(t, cfg))
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(res.Value, 0.25, 0.01) {
		t.Fatalf("∫xy = %s", res)
	}
	if res.Error <= 0 || res.Error > 0.01 {
		t.Fatalf("error estimate %g", res.Error)
	}
	if res.Iterations != len(res.History) || res.Iterations == 0 {
		t.Fatalf("%d iterations, %d history entries", res.Iterations, len(res.History))
	}
	last := res.History[len(res.History)-1]
	if res.Value != last.Value || res.Error != last.Error || res.Extra != last.ChiSquare {
		t.Fatal("result is not the last iteration")
	}
}

func TestImportanceMCBox(t *testing.T) {
	cfg := smallVegas()
	ig := NewIntegrator()
	if err := ig.SetBounds(2, []float64{5, 3}, []float64{2, 0}); err != nil {
		t.Fatal(err)
	}
	ig.SetImportanceMCConfig(&cfg)
	res, err := Integrate(func(x []float64, _ interface{}) float64 { return 3 }, ig)
	if err != nil {
		t.Fatal(err)
	}
	// The refined grid follows the sampling noise of the bin sums, so even a constant picks up a
	// variance after the first iteration.
	if math.Abs(res.Value-27) > 5*res.Error+1e-9 {
		t.Fatalf("∫3 over a 3x3 box = %s", res)
	}
}

func TestImportanceMCUnconvergedKeepsLastEstimate(t *testing.T) {
	cfg := smallVegas()
	cfg.ChiSquareTolerance = 1e-12
	cfg.MaxIterations = 2
	res, err := Integrate(product, vegasOn(t, cfg))
	if err != nil {
		t.Fatalf("exhausting the iterations is not an error: %s", err)
	}
	if res.Converged {
		t.Fatal("converged with an unreachable tolerance")
	}
	if res.Iterations != 2 || len(res.History) != 2 {
		t.Fatalf("%d iterations", res.Iterations)
	}
	if res.Value != res.History[1].Value || res.Error != res.History[1].Error {
		t.Fatalf("result %s is not the second iteration %+v", res, res.History[1])
	}
	if !scalar.EqualWithinAbs(res.Value, 0.25, 0.01) {
		t.Fatalf("∫xy = %s", res)
	}
}

func TestImportanceMCCallGrowth(t *testing.T) {
	cfg := smallVegas()
	cfg.MainCalls = 1000
	cfg.MaxIterations = 3
	cfg.RelativeErrorTarget = 1e-12
	cfg.ChiSquareTolerance = 10 // would accept anything if it were looked at
	ig := vegasOn(t, cfg)
	res, err := Integrate(product, ig)
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Fatal("the χ² gate must not be checked while the relative error gate fails")
	}
	for i, exp := range []uint{1000, 2000, 4000} {
		if res.History[i].Calls != exp {
			t.Fatalf("iteration %d ran %d calls instead of %d", i+1, res.History[i].Calls, exp)
		}
	}
	if got, _ := ig.ImportanceMCConfig(); got.MainCalls != 1000 {
		t.Fatalf("the stored configuration grew to %d calls", got.MainCalls)
	}
	exp := int(cfg.WarmUpCalls+1000+2000+4000) * cfg.IterationsPerCall
	if res.Evaluations != exp {
		t.Fatalf("%d evaluations instead of %d", res.Evaluations, exp)
	}
}

func TestImportanceMCStableOnceConverged(t *testing.T) {
	cfg := smallVegas()
	var first *Result
	for m := 1; m <= 10; m++ {
		cfg.MaxIterations = m
		res, err := Integrate(product, vegasOn(t, cfg))
		if err != nil {
			t.Fatal(err)
		}
		if first != nil {
			// Further iterations are never run once the loop converged.
			if !res.Converged || res.Iterations != first.Iterations || res.Value != first.Value ||
				res.Error != first.Error || res.Extra != first.Extra {
				t.Fatalf("max=%d: %s differs from the run converged at %d: %s", m, res, first.Iterations, first)
			}
			continue
		}
		if res.Iterations != m || len(res.History) != m {
			t.Fatalf("max=%d: %d iterations, %d history entries", m, res.Iterations, len(res.History))
		}
		last := res.History[m-1]
		if res.Value != last.Value || res.Error != last.Error || res.Extra != last.ChiSquare {
			t.Fatalf("max=%d: result %s is not the last iteration %+v", m, res, last)
		}
		if res.Converged {
			if math.Abs(res.Extra-1) >= cfg.ChiSquareTolerance {
				t.Fatalf("converged with |χ²-1| = %g", math.Abs(res.Extra-1))
			}
			first = &res
		}
	}
	if first == nil {
		t.Fatal("never converged in 10 iterations")
	}
}

func TestImportanceMCSameSeedSameResult(t *testing.T) {
	cfg := smallVegas()
	r1, err1 := Integrate(product, vegasOn(t, cfg))
	r2, err2 := Integrate(product, vegasOn(t, cfg))
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if r1.Value != r2.Value || r1.Error != r2.Error {
		t.Fatal("same seed, different results")
	}
	cfg.Seed++
	r3, _ := Integrate(product, vegasOn(t, cfg))
	if r3.Value == r1.Value {
		t.Fatal("different seeds, same result")
	}
}

func TestImportanceMCWarmUpOnly(t *testing.T) {
	cfg := smallVegas()
	cfg.MaxIterations = 0
	res, err := Integrate(product, vegasOn(t, cfg))
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 0 || len(res.History) != 0 || res.Converged {
		t.Fatalf("warm-up only run: %s", res)
	}
	if !scalar.EqualWithinAbs(res.Value, 0.25, 0.02) {
		t.Fatalf("warm-up estimate %s", res)
	}
}

func TestImportanceMCBroken(t *testing.T) {
	_, err := Integrate(func(x []float64, _ interface{}) float64 { return math.Inf(1) }, vegasOn(t, smallVegas()))
	var berr *BackendError
	if !errors.As(err, &berr) || berr.Routine != ImportanceMC {
		t.Fatalf("expected a BackendError, got %v", err)
	}
}

func TestPlainImportanceMC(t *testing.T) {
	cfg := smallVegas()
	ig := vegasOn(t, cfg)
	if err := ig.SetRoutine("divonne"); err != nil {
		t.Fatal(err)
	}
	res, err := PlainImportanceMC(product, ig)
	if err != nil {
		t.Fatal(err)
	}
	if res.Routine != ImportanceMC || res.Iterations != 0 || len(res.History) != 0 {
		t.Fatalf("plain run %s", res)
	}
	if res.Evaluations != int(cfg.MainCalls)*cfg.IterationsPerCall {
		t.Fatalf("%d evaluations", res.Evaluations)
	}
	if !scalar.EqualWithinAbs(res.Value, 0.25, 0.02) {
		t.Fatalf("∫xy = %s", res)
	}

	ig.SetImportanceMCConfig(nil)
	if _, err := PlainImportanceMC(product, ig); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}

func TestCombine(t *testing.T) {
	est := combine([]float64{1, 3}, []float64{1, 1})
	if est.value != 2 || !scalar.EqualWithinAbs(est.err, math.Sqrt(0.5), 1e-15) || est.chi2 != 2 {
		t.Fatalf("%+v", est)
	}
	// A leading zero variance iteration carries no weight.
	est = combine([]float64{1, 3}, []float64{0, 1})
	if est.value != 3 || est.err != 1 {
		t.Fatalf("%+v", est)
	}
	// Later ones get the mean weight of the earlier iterations.
	est = combine([]float64{0, 3e-3, 2e-3, 0}, []float64{0, 1e-6, 1e-6, 0})
	if !scalar.EqualWithinAbs(est.value, 5e-3/3, 1e-15) || !scalar.EqualWithinRel(est.err, math.Sqrt(1/3e6), 1e-12) {
		t.Fatalf("%+v", est)
	}
	if est.chi2 <= 0 {
		t.Fatalf("spread of the iterations lost: %+v", est)
	}
	// Exact only when no iteration has a variance.
	est = combine([]float64{2, 2, 2}, []float64{0, 0, 0})
	if est.value != 2 || est.err != 0 {
		t.Fatalf("%+v", est)
	}
	est = combine([]float64{0, 3}, []float64{0, 0})
	if est.value != 1.5 || est.err == 0 {
		t.Fatalf("%+v", est)
	}
}

func TestImportanceMCSmallSupport(t *testing.T) {
	corner := func(x []float64, _ interface{}) float64 {
		if x[0] < 0.05 && x[1] < 0.05 {
			return 1
		}
		return 0
	}
	cfg := smallVegas()
	cfg.WarmUpCalls = 0
	cfg.MainCalls = 500
	cfg.MaxIterations = 1
	collapsed := 0
	for seed := uint64(0); seed < 40; seed++ {
		cfg.Seed = seed
		res, err := Integrate(corner, vegasOn(t, cfg))
		if err != nil {
			t.Fatal(err)
		}
		if res.Value == 0 && res.Error == 0 {
			// Every iteration missed the corner.
			collapsed++
			continue
		}
		if res.Value <= 0 || res.Error <= 0 {
			t.Fatalf("seed=%d: %s", seed, res)
		}
	}
	// Missing the corner in all five iterations of 500 samples happens with probability ~0.2%.
	if collapsed > 2 {
		t.Fatalf("%d/40 runs collapsed to 0 ± 0, true value 0.0025", collapsed)
	}
}

func TestImportanceMCIterationsPerCall(t *testing.T) {
	cfg := smallVegas()
	cfg.IterationsPerCall = 1
	if _, err := Integrate(product, vegasOn(t, cfg)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("a single iteration per call has no χ²: %v", err)
	}
}
