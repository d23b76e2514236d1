package interpolation

import (
	"log/slog"
	"math"
	"strings"
	"time"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/timebase"
	"scadalab/pkg/contracts/domain"
)

// DefaultMaxGridPoints bounds resample_grid output unless max_points is set
const DefaultMaxGridPoints = 1_000_000

// resample re-expresses the valid samples on a uniform grid spanning
// [min t, max t]. Grid points that coincide with an original valid sample
// are measured, every other point is flagged as computed.
func (e *Engine) resample(values, t []float64, params domain.Params, start time.Time) (*Result, error) {
	xs, ys := validPoints(values, t, e.missing)
	if len(xs) < 2 {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
			MethodResampleGrid.String(), len(xs), 2)
	}

	grid, err := ResampleGrid(xs[0], xs[len(xs)-1], medianSpacing(xs), params)
	if err != nil {
		return nil, err
	}
	res, err := e.onto(xs, ys, grid, params)
	if err != nil {
		return nil, err
	}
	res.Metadata = domain.NewResultMetadata("interpolate:"+MethodResampleGrid.String(), params, start)
	res.Metadata.Parameters["fitted_points"] = len(grid)

	e.logger.Debug("resample complete",
		slog.Int("input_points", len(xs)),
		slog.Int("grid_points", len(grid)),
		slog.Float64("duration_ms", res.Metadata.DurationMS))
	return res, nil
}

// ResampleOnto re-expresses the valid samples on a caller-supplied grid.
// Grid points outside the span of the valid samples are NaN and unmarked.
func (e *Engine) ResampleOnto(values, t, grid []float64, params domain.Params) (*Result, error) {
	start := time.Now()
	if len(values) != len(t) {
		return nil, apperrors.LengthMismatch(apperrors.ErrTypeInterpolation, "resample",
			map[string]int{"values": len(values), "time": len(t)})
	}
	xs, ys := validPoints(values, t, e.missing)
	if len(xs) < 2 {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
			MethodResampleGrid.String(), len(xs), 2)
	}
	res, err := e.onto(xs, ys, grid, params)
	if err != nil {
		return nil, err
	}
	res.Metadata = domain.NewResultMetadata("interpolate:"+MethodResampleGrid.String(), params, start)
	res.Metadata.Parameters["fitted_points"] = len(grid)
	return res, nil
}

func (e *Engine) onto(xs, ys, grid []float64, params domain.Params) (*Result, error) {
	model, err := fitResampleKind(xs, ys, params)
	if err != nil {
		return nil, err
	}

	measured := make(map[float64]float64, len(xs))
	for i, x := range xs {
		measured[x] = ys[i]
	}

	tol := 1e-9 * (xs[len(xs)-1] - xs[0])
	lo, hi := xs[0]-tol, xs[len(xs)-1]+tol
	out := make([]float64, len(grid))
	info := domain.NewInterpolationInfo(len(grid))
	for i, g := range grid {
		if v, ok := measured[g]; ok {
			out[i] = v
			continue
		}
		if !isFinite(g) || g < lo || g > hi {
			out[i] = math.NaN()
			continue
		}
		out[i] = model.Predict(g)
		info.Mark(i, MethodResampleGrid.String())
	}

	grid2 := make([]float64, len(grid))
	copy(grid2, grid)
	return &Result{Values: out, Time: grid2, Info: info}, nil
}

// ResampleGrid builds a uniform grid on [lo, hi] from n_points, dt (seconds)
// or frequency (duration string), in that order of precedence. fallbackDt
// is used when none is given. max_points caps the grid size.
func ResampleGrid(lo, hi, fallbackDt float64, params domain.Params) ([]float64, error) {
	maxPoints := params.Int("max_points", DefaultMaxGridPoints)

	if params.Has("n_points") {
		n := params.Int("n_points", 0)
		if n < 2 {
			return nil, apperrors.InvalidParameter("interpolation", "n_points", n, "must be at least 2")
		}
		if n > maxPoints {
			return nil, apperrors.InvalidParameter("interpolation", "n_points", n, "exceeds max_points")
		}
		return timebase.UniformGrid(lo, hi, n), nil
	}

	dt := fallbackDt
	switch {
	case params.Has("dt"):
		dt = params.Float("dt", 0)
	case params.Has("frequency"):
		d, err := time.ParseDuration(strings.TrimSpace(params.String("frequency", "")))
		if err != nil {
			return nil, apperrors.InvalidParameter("interpolation", "frequency", params["frequency"], "not a duration")
		}
		dt = d.Seconds()
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, apperrors.InvalidParameter("interpolation", "dt", dt, "must be positive")
	}
	if est := (hi-lo)/dt + 1; est > float64(maxPoints) {
		return nil, apperrors.InvalidParameter("interpolation", "dt", dt, "grid exceeds max_points").
			WithContext("grid_points", int64(est)).
			WithContext("max_points", maxPoints)
	}
	return timebase.StepGrid(lo, hi, dt), nil
}

// fitResampleKind builds the model behind resample_grid, selected by kind
func fitResampleKind(xs, ys []float64, params domain.Params) (predictor, error) {
	switch kind := strings.ToLower(params.String("kind", "linear")); kind {
	case "linear":
		return fitLinear(xs, ys)
	case "cubic":
		if len(xs) < minSplinePoints {
			return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
				MethodResampleGrid.String(), len(xs), minSplinePoints).
				WithContext("kind", kind)
		}
		return fitCubic(xs, ys, params)
	default:
		return nil, apperrors.InvalidParameter("interpolation", "kind", kind, "expected linear or cubic")
	}
}

// ValidPoints returns the finite (t, value) samples sorted by time with
// repeated times collapsed to their first occurrence
func ValidPoints(values, t []float64) ([]float64, []float64) {
	return validPoints(values, t, MissingMask)
}

// MedianSpacing is the median interval of sorted, distinct sample times.
// It returns 0 for fewer than two samples.
func MedianSpacing(xs []float64) float64 {
	return medianSpacing(xs)
}
