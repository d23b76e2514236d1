package interpolation

import "math"

// MissingMask marks every non-finite element (NaN or ±Inf)
func MissingMask(values []float64) []bool {
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = math.IsNaN(v) || math.IsInf(v, 0)
	}
	return mask
}

// MissingMaskUnrolled returns exactly what MissingMask returns. It relies on
// x-x being 0 for every finite x and NaN otherwise, and handles four
// elements per iteration.
func MissingMaskUnrolled(values []float64) []bool {
	n := len(values)
	mask := make([]bool, n)
	i := 0
	for ; i+4 <= n; i += 4 {
		a, b, c, d := values[i], values[i+1], values[i+2], values[i+3]
		mask[i] = a-a != 0
		mask[i+1] = b-b != 0
		mask[i+2] = c-c != 0
		mask[i+3] = d-d != 0
	}
	for ; i < n; i++ {
		v := values[i]
		mask[i] = v-v != 0
	}
	return mask
}

func isFinite(v float64) bool {
	return v-v == 0
}
