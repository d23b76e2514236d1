package smoothing

import (
	"gonum.org/v1/gonum/mat"

	apperrors "scadalab/internal/errors"
)

// savgol fits a polynomial of degree polyorder over each window. The
// first and last half-windows are evaluated on the polynomial fitted to
// the edge window.
func savgol(values []float64, window, polyorder int) ([]float64, error) {
	n := len(values)
	switch {
	case window < 1 || window%2 == 0:
		return nil, apperrors.InvalidParameter("smoothing", "window_length", window, "must be a positive odd integer")
	case polyorder < 0 || polyorder >= window:
		return nil, apperrors.InvalidParameter("smoothing", "polyorder", polyorder, "must be less than window_length")
	case window > n:
		return nil, apperrors.InvalidParameter("smoothing", "window_length", window, "exceeds series length").
			WithContext("length", n)
	}

	half := window / 2
	proj, err := savgolProjection(window, polyorder)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	for i := half; i < n-half; i++ {
		s := 0.0
		for k := 0; k < window; k++ {
			s += proj.At(0, k) * values[i-half+k]
		}
		out[i] = s
	}

	fitEdge := func(offset int, positions []int) {
		coef := make([]float64, polyorder+1)
		for j := range coef {
			for k := 0; k < window; k++ {
				coef[j] += proj.At(j, k) * values[offset+k]
			}
		}
		for _, i := range positions {
			u := float64(i-offset-half) / float64(max(half, 1))
			v, pow := 0.0, 1.0
			for _, c := range coef {
				v += c * pow
				pow *= u
			}
			out[i] = v
		}
	}

	left := make([]int, 0, half)
	right := make([]int, 0, half)
	for i := 0; i < half; i++ {
		left = append(left, i)
		right = append(right, n-half+i)
	}
	fitEdge(0, left)
	fitEdge(n-window, right)
	return out, nil
}

// savgolProjection returns (AᵀA)⁻¹Aᵀ for the Vandermonde matrix A of the
// window positions scaled to [-1, 1]. Row j maps window samples to the
// j-th polynomial coefficient.
func savgolProjection(window, polyorder int) (*mat.Dense, error) {
	half := window / 2
	scale := float64(max(half, 1))
	a := mat.NewDense(window, polyorder+1, nil)
	for k := 0; k < window; k++ {
		u := float64(k-half) / scale
		pow := 1.0
		for j := 0; j <= polyorder; j++ {
			a.Set(k, j, pow)
			pow *= u
		}
	}

	var ata, inv mat.Dense
	ata.Mul(a.T(), a)
	if err := inv.Inverse(&ata); err != nil {
		return nil, apperrors.InvalidParameter("smoothing", "polyorder", polyorder, "normal equations are singular")
	}
	var proj mat.Dense
	proj.Mul(&inv, a.T())
	return &proj, nil
}
