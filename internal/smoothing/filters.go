package smoothing

import (
	"math"

	"github.com/montanaflynn/stats"

	apperrors "scadalab/internal/errors"
)

// gaussian convolves with a normalised Gaussian kernel of radius
// int(truncate*sigma + 0.5) using reflect boundaries
func gaussian(values []float64, sigma, truncate float64) ([]float64, error) {
	if !(sigma > 0) {
		return nil, apperrors.InvalidParameter("smoothing", "sigma", sigma, "must be positive")
	}
	if !(truncate > 0) {
		return nil, apperrors.InvalidParameter("smoothing", "truncate", truncate, "must be positive")
	}

	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for k := -radius; k <= radius; k++ {
		w := math.Exp(-0.5 * float64(k*k) / (sigma * sigma))
		kernel[k+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	n := len(values)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for k := -radius; k <= radius; k++ {
			s += kernel[k+radius] * values[reflectIndex(i+k, n)]
		}
		out[i] = s
	}
	return out, nil
}

// median replaces each sample with the median of its window, reflect
// boundaries
func median(values []float64, size int) ([]float64, error) {
	if size < 1 || size%2 == 0 {
		return nil, apperrors.InvalidParameter("smoothing", "kernel_size", size, "must be a positive odd integer")
	}

	n := len(values)
	half := size / 2
	out := make([]float64, n)
	window := make(stats.Float64Data, size)
	for i := 0; i < n; i++ {
		for k := -half; k <= half; k++ {
			window[k+half] = values[reflectIndex(i+k, n)]
		}
		m, err := window.Median()
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrTypeConfig, "median filter failed", err)
		}
		out[i] = m
	}
	return out, nil
}
