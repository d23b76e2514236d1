package synchronization

import (
	"math"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/interpolation"
	"scadalab/pkg/contracts/domain"
)

// CommonGrid builds the shared axis. The range is the intersection
// (default) or union of the per-series valid time ranges; spacing comes
// from n_points, dt or frequency, else the finest median spacing.
func CommonGrid(series, times map[string][]float64, policy string, params domain.Params) ([]float64, error) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if policy == PolicyUnion {
		lo, hi = math.Inf(1), math.Inf(-1)
	}
	step := math.Inf(1)

	for k, t := range times {
		xs, _ := interpolation.ValidPoints(series[k], t)
		if len(xs) == 0 {
			return nil, apperrors.NewAppValidationError("empty_series", "series has no valid samples").
				WithContext("series", k)
		}
		first, last := xs[0], xs[len(xs)-1]

		switch policy {
		case PolicyIntersection:
			lo = math.Max(lo, first)
			hi = math.Min(hi, last)
		case PolicyUnion:
			lo = math.Min(lo, first)
			hi = math.Max(hi, last)
		default:
			return nil, apperrors.InvalidParameter("synchronization", "grid_policy", policy,
				"expected intersection or union")
		}

		if d := interpolation.MedianSpacing(xs); d > 0 && d < step {
			step = d
		}
	}

	if lo > hi {
		return nil, apperrors.NewAppValidationError("no_overlap", "series time ranges do not overlap").
			WithContext("start", lo).
			WithContext("end", hi)
	}
	if lo == hi {
		return []float64{lo}, nil
	}
	if math.IsInf(step, 1) {
		step = hi - lo
	}
	return interpolation.ResampleGrid(lo, hi, step, params)
}
