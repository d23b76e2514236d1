package smoothing

import (
	"math"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

const maxButterworthOrder = 10

// section is one biquad: b0 b1 b2 over 1 a1 a2
type section struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// normalizedCutoff reads cutoff as a fraction of Nyquist, or in Hz when fs
// is given
func normalizedCutoff(params domain.Params) (float64, error) {
	cutoff := params.Float("cutoff", 0.1)
	wn := cutoff
	if params.Has("fs") {
		fs := params.Float("fs", 0)
		if !(fs > 0) {
			return 0, apperrors.InvalidParameter("smoothing", "fs", fs, "must be positive")
		}
		wn = cutoff / (fs / 2)
	}
	if !(wn > 0 && wn < 1) {
		return 0, apperrors.InvalidParameter("smoothing", "cutoff", cutoff, "must lie strictly between 0 and Nyquist")
	}
	return wn, nil
}

// butterworthSOS designs a digital low-pass Butterworth filter of the given
// order as second-order sections using the bilinear transform with
// frequency prewarping. Every section has unit DC gain.
func butterworthSOS(order int, wn float64) []section {
	k := math.Tan(math.Pi * wn / 2)
	k2 := k * k

	sos := make([]section, 0, (order+1)/2)
	for i := 0; i < order/2; i++ {
		theta := float64(2*i+1) * math.Pi / float64(2*order)
		a := 2 * math.Sin(theta)
		norm := 1 + a*k + k2
		sos = append(sos, section{
			b0: k2 / norm,
			b1: 2 * k2 / norm,
			b2: k2 / norm,
			a1: 2 * (k2 - 1) / norm,
			a2: (1 - a*k + k2) / norm,
		})
	}
	if order%2 == 1 {
		norm := 1 + k
		sos = append(sos, section{
			b0: k / norm,
			b1: k / norm,
			a1: (k - 1) / norm,
		})
	}
	return sos
}

// steadyState returns the transposed direct form II states of a section
// settled on a unit step
func (s section) steadyState() (float64, float64) {
	gain := (s.b0 + s.b1 + s.b2) / (1 + s.a1 + s.a2)
	z2 := s.b2 - s.a2*gain
	z1 := s.b1 - s.a1*gain + z2
	return z1, z2
}

// filter runs the cascade once over x, starting every section at its
// steady state for the level x[0]
func filter(sos []section, x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	for _, s := range sos {
		z1, z2 := s.steadyState()
		z1 *= y[0]
		z2 *= y[0]
		for i, in := range y {
			out := s.b0*in + z1
			z1 = s.b1*in - s.a1*out + z2
			z2 = s.b2*in - s.a2*out
			y[i] = out
		}
	}
	return y
}

// butterworth applies the filter forward and backward for zero phase. The
// signal is padded by odd reflection about its end points.
func butterworth(values []float64, wn float64, order int) ([]float64, error) {
	if order < 1 || order > maxButterworthOrder {
		return nil, apperrors.InvalidParameter("smoothing", "order", order, "must be between 1 and 10")
	}
	n := len(values)
	if n < 2 {
		out := make([]float64, n)
		copy(out, values)
		return out, nil
	}

	sos := butterworthSOS(order, wn)
	pad := 3 * (2*len(sos) + 1)
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*values[0]-values[i])
	}
	ext = append(ext, values...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*values[n-1]-values[i])
	}

	fwd := filter(sos, ext)
	reverse(fwd)
	back := filter(sos, fwd)
	reverse(back)

	out := make([]float64, n)
	copy(out, back[pad:pad+n])
	return out, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
