package lss

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// relativeError returns err/|value|, or zero for a zero value.
func relativeError(value, err float64) float64 {
	if value == 0 {
		return 0
	}
	return err / math.Abs(value)
}

// widths returns upper - lower, component-wise.
func widths(lower, upper []float64) []float64 {
	w := make([]float64, len(upper))
	floats.SubTo(w, upper, lower)
	return w
}

// jacobian returns the volume of the box, i.e. the Jacobian of the map from the unit cube.
func jacobian(lower, upper []float64) float64 {
	return floats.Prod(widths(lower, upper))
}

// mapUnit writes lower + x*(upper - lower) into dst.
func mapUnit(dst, x, lower, width []float64) {
	for i := range dst {
		dst[i] = lower[i] + x[i]*width[i]
	}
}

// unbounded returns the first axis with a NaN or infinite bound, or -1 when all are finite.
func unbounded(lower, upper []float64) int {
	for i := range lower {
		if !finite(lower[i]) || !finite(upper[i]) {
			return i
		}
	}
	return -1
}

// ordered returns the first axis where lower > upper, or -1 when all are ordered.
func ordered(lower, upper []float64) int {
	for i := range lower {
		if lower[i] > upper[i] {
			return i
		}
	}
	return -1
}

// finite returns whether v is neither NaN nor ±Inf.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// scaleCalls multiplies a call budget by factor, truncating as an integer conversion does.
func scaleCalls(calls uint, factor float64) uint {
	return uint(float64(calls) * factor)
}
