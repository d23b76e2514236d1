package interpolation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/shared/testutil"
	"scadalab/pkg/contracts/domain"
)

var nan = math.NaN()

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewEngine(AllCapabilities(), logger)
}

func seq(n int, f func(x float64) float64) ([]float64, []float64) {
	ts := make([]float64, n)
	vs := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i)
		vs[i] = f(ts[i])
	}
	return vs, ts
}

func TestInterpolateLinear(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Interpolate(
		[]float64{1, nan, 3, nan, 5},
		[]float64{0, 1, 2, 3, 4},
		"linear", nil)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1, 2, 3, 4, 5}, res.Values, 1e-12)
	assert.Equal(t, []bool{false, true, false, true, false}, res.Info.Mask)
	assert.Equal(t, []string{"", "linear", "", "linear", ""}, res.Info.Method)
	assert.Nil(t, res.Time)
	assert.Nil(t, res.Uncertainty)
	assert.Equal(t, "interpolate:linear", res.Metadata.Operation)
	assert.NotEmpty(t, res.Metadata.PlatformVersion)
	assert.GreaterOrEqual(t, res.Metadata.DurationMS, 0.0)
}

func TestInterpolateLinearProperties(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name   string
		values []float64
		times  []float64
	}{
		{"leading and trailing gaps", []float64{nan, nan, 2, 4, nan}, []float64{0, 1, 2, 3, 4}},
		{"infinities count as missing", []float64{1, math.Inf(1), 3, math.Inf(-1), 5}, []float64{0, 1, 2, 3, 4}},
		{"unsorted time", []float64{3, nan, 1, 2}, []float64{3, 1.5, 1, 2}},
		{"single valid point", []float64{nan, 7, nan}, []float64{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Interpolate(tt.values, tt.times, "linear", domain.Params{})
			require.NoError(t, err)

			missing := 0
			for i, v := range tt.values {
				if !isFinite(v) {
					missing++
					assert.True(t, res.Info.Mask[i])
				} else {
					assert.Equal(t, v, res.Values[i], "measured value changed at %d", i)
					assert.False(t, res.Info.Mask[i])
				}
				assert.False(t, math.IsNaN(res.Values[i]))
			}
			assert.Equal(t, missing, res.Info.Count())
		})
	}
}

func TestInterpolateLinearUnsortedTime(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Interpolate([]float64{3, nan, 1, 2}, []float64{3, 1.5, 1, 2}, "linear", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Values[1], 1e-12)
}

func TestInterpolateNaNTimeLeftAlone(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Interpolate([]float64{1, nan, 3}, []float64{0, nan, 2}, "linear", nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Values[1]))
	assert.False(t, res.Info.Mask[1])
}

func TestInterpolateErrors(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name     string
		values   []float64
		times    []float64
		method   string
		params   domain.Params
		errType  apperrors.ErrorType
		sentinel error
	}{
		{
			name:     "unsupported method",
			values:   []float64{1, 2},
			times:    []float64{0, 1},
			method:   "kriging",
			errType:  apperrors.ErrTypeConfig,
			sentinel: apperrors.ErrUnsupportedMethod,
		},
		{
			name:     "length mismatch",
			values:   []float64{1, 2, 3},
			times:    []float64{0, 1},
			method:   "linear",
			errType:  apperrors.ErrTypeInterpolation,
			sentinel: apperrors.ErrLengthMismatch,
		},
		{
			name:     "linear with no valid points",
			values:   []float64{nan, nan},
			times:    []float64{0, 1},
			method:   "linear",
			errType:  apperrors.ErrTypeInterpolation,
			sentinel: apperrors.ErrInsufficientData,
		},
		{
			name:     "cubic with three points",
			values:   []float64{1, nan, 2, 3},
			times:    []float64{0, 1, 2, 3},
			method:   "spline_cubic",
			errType:  apperrors.ErrTypeInterpolation,
			sentinel: apperrors.ErrInsufficientData,
		},
		{
			name:     "smoothing spline with three points",
			values:   []float64{1, 2, 3},
			times:    []float64{0, 1, 2},
			method:   "smoothing_spline",
			errType:  apperrors.ErrTypeInterpolation,
			sentinel: apperrors.ErrInsufficientData,
		},
		{
			name:     "spectral below harmonics requirement",
			values:   []float64{1, 2, 3, 4, 5},
			times:    []float64{0, 1, 2, 3, 4},
			method:   "lomb_scargle_spectral",
			errType:  apperrors.ErrTypeInterpolation,
			sentinel: apperrors.ErrInsufficientData,
		},
		{
			name:    "bad bc_type",
			values:  []float64{1, 2, 3, 4},
			times:   []float64{0, 1, 2, 3},
			method:  "spline_cubic",
			params:  domain.Params{"bc_type": "periodic"},
			errType: apperrors.ErrTypeConfig,
		},
		{
			name:    "bad mls degree",
			values:  []float64{1, 2, 3, 4},
			times:   []float64{0, 1, 2, 3},
			method:  "mls",
			params:  domain.Params{"degree": 9},
			errType: apperrors.ErrTypeConfig,
		},
		{
			name:    "negative lambda",
			values:  []float64{1, 2, 3, 4},
			times:   []float64{0, 1, 2, 3},
			method:  "smoothing_spline",
			params:  domain.Params{"lambda": -1.0},
			errType: apperrors.ErrTypeConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Interpolate(tt.values, tt.times, tt.method, tt.params)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestInterpolateUnavailableMethod(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	e := NewEngine(ResolveCapabilities([]string{"gaussian_process"}), logger)

	_, err := e.Interpolate([]float64{1, nan, 3}, []float64{0, 1, 2}, "gpr", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMethodUnavailable))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInterpolation))

	_, err = e.Interpolate([]float64{1, nan, 3}, []float64{0, 1, 2}, "linear", nil)
	assert.NoError(t, err)
}

func TestInterpolateSplineCubicReproducesCubic(t *testing.T) {
	e := newTestEngine(t)
	cubic := func(x float64) float64 { return x*x*x - 2*x + 1 }

	values, times := seq(10, cubic)
	values[5] = nan

	res, err := e.Interpolate(values, times, "spline_cubic", nil)
	require.NoError(t, err)

	for i, x := range times {
		assert.InDelta(t, cubic(x), res.Values[i], 1e-6, "t=%v", x)
	}
	assert.Equal(t, 1, res.Info.Count())
	assert.True(t, res.Info.Mask[5])
}

func TestInterpolateSplineBoundaryConditions(t *testing.T) {
	e := newTestEngine(t)
	values, times := seq(8, math.Sin)
	values[3] = nan

	for _, bc := range []string{BCNotAKnot, BCNatural, BCClamped, "not_a_knot"} {
		t.Run(bc, func(t *testing.T) {
			res, err := e.Interpolate(values, times, "spline_cubic", domain.Params{"bc_type": bc})
			require.NoError(t, err)
			assert.InDelta(t, math.Sin(3), res.Values[3], 0.1)
			assert.InDelta(t, math.Sin(4), res.Values[4], 1e-9)
		})
	}
}

func TestInterpolateSmoothingSpline(t *testing.T) {
	e := newTestEngine(t)

	t.Run("lambda zero interpolates", func(t *testing.T) {
		values, times := seq(8, func(x float64) float64 { return math.Cos(x / 2) })
		values[4] = nan
		res, err := e.Interpolate(values, times, "smoothing_spline", domain.Params{"lambda": 0.0})
		require.NoError(t, err)
		for i := range times {
			if i == 4 {
				continue
			}
			assert.InDelta(t, values[i], res.Values[i], 1e-9)
		}
		assert.InDelta(t, math.Cos(2), res.Values[4], 0.05)
		assert.Equal(t, 0.0, res.Metadata.Parameters["fitted_lambda"])
	})

	t.Run("straight line is preserved", func(t *testing.T) {
		values, times := seq(12, func(x float64) float64 { return 2*x + 1 })
		values[6] = nan
		res, err := e.Interpolate(values, times, "smoothing_spline", nil)
		require.NoError(t, err)
		for i, x := range times {
			assert.InDelta(t, 2*x+1, res.Values[i], 1e-6)
		}
		assert.Contains(t, res.Metadata.Parameters, "fitted_lambda")
		assert.Contains(t, res.Metadata.Parameters, "fitted_residual_sum_squares")
	})

	t.Run("residual target is met", func(t *testing.T) {
		values, times := seq(30, func(x float64) float64 {
			// deterministic zigzag noise on a slow trend
			if int(x)%2 == 0 {
				return x/10 + 0.5
			}
			return x/10 - 0.5
		})
		res, err := e.Interpolate(values, times, "smoothing_spline", domain.Params{"smoothing_factor": 3.0})
		require.NoError(t, err)
		got, ok := res.Metadata.Parameters["fitted_residual_sum_squares"].(float64)
		require.True(t, ok)
		assert.InDelta(t, 3.0, got, 0.01)
		assert.Zero(t, res.Info.Count())
	})
}

func TestInterpolateMLS(t *testing.T) {
	e := newTestEngine(t)
	values, times := seq(15, func(x float64) float64 { return x * x })
	values[5] = nan
	values[11] = nan

	res, err := e.Interpolate(values, times, "mls", nil)
	require.NoError(t, err)
	assert.InDelta(t, 25, res.Values[5], 1e-6)
	assert.InDelta(t, 121, res.Values[11], 1e-6)
	assert.Equal(t, 2, res.Info.Count())
	assert.Equal(t, 2, res.Metadata.Parameters["fitted_degree"])

	res, err = e.Interpolate(values, times, "mls", domain.Params{"degree": 0, "neighbors": 2})
	require.NoError(t, err)
	assert.InDelta(t, (16.0+36.0)/2, res.Values[5], 1e-9)
}

func TestInterpolateGPR(t *testing.T) {
	e := newTestEngine(t)
	values, times := seq(40, func(x float64) float64 { return math.Sin(0.5 * x) })
	values[20] = nan

	res, err := e.Interpolate(values, times, "gpr", nil)
	require.NoError(t, err)

	assert.InDelta(t, math.Sin(10), res.Values[20], 0.01)
	require.Len(t, res.Uncertainty, 40)
	assert.Greater(t, res.Uncertainty[20], 0.0)
	assert.Less(t, res.Uncertainty[20], 0.1)
	assert.Zero(t, res.Uncertainty[0])
	assert.Equal(t, values[0], res.Values[0])
	assert.Contains(t, res.Metadata.Parameters, "fitted_length_scale")
	assert.Contains(t, res.Metadata.Parameters, "fitted_log_marginal_likelihood")
	assert.Nil(t, res.Metadata.Seed)
}

func TestInterpolateGPRSeededSubsample(t *testing.T) {
	e := newTestEngine(t)
	values, times := seq(60, func(x float64) float64 { return math.Sin(0.2 * x) })
	values[30] = nan
	params := domain.Params{"max_training_points": 25, "seed": 7}

	first, err := e.Interpolate(values, times, "gpr", params)
	require.NoError(t, err)
	second, err := e.Interpolate(values, times, "gpr", params)
	require.NoError(t, err)

	require.NotNil(t, first.Metadata.Seed)
	assert.Equal(t, int64(7), *first.Metadata.Seed)
	assert.Equal(t, 25, first.Metadata.Parameters["fitted_training_points"])
	assert.Equal(t, first.Values[30], second.Values[30])
	assert.InDelta(t, math.Sin(6), first.Values[30], 0.2)
}

func TestInterpolateLombScargle(t *testing.T) {
	e := newTestEngine(t)

	// a frequency that falls exactly on the periodogram grid
	const n, nFreq = 200, 500
	fMin := 1.0 / float64(n-1)
	f0 := fMin + 49*(0.5-fMin)/float64(nFreq-1)
	signal := func(x float64) float64 { return 3 + 2*math.Sin(2*math.Pi*f0*x) }

	values, times := seq(n, signal)
	values[100] = nan

	res, err := e.Interpolate(values, times, "lomb_scargle_spectral", domain.Params{"n_harmonics": 1})
	require.NoError(t, err)
	assert.InDelta(t, signal(100), res.Values[100], 1e-6)
	assert.Equal(t, 1, res.Info.Count())

	freqs, ok := res.Metadata.Parameters["fitted_frequencies"].([]float64)
	require.True(t, ok)
	require.Len(t, freqs, 1)
	assert.InDelta(t, f0, freqs[0], 1e-9)
}

func TestInterpolateResampleGrid(t *testing.T) {
	e := newTestEngine(t)
	values := []float64{0, 2, 4, nan, 8, 10}
	times := []float64{0, 1, 2, 3, 4, 5}

	tests := []struct {
		name   string
		params domain.Params
		want   []float64
	}{
		{"n_points", domain.Params{"n_points": 11}, []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5}},
		{"dt", domain.Params{"dt": 2.5}, []float64{0, 2.5, 5}},
		{"frequency", domain.Params{"frequency": "500ms"}, []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5}},
		{"median spacing default", domain.Params{}, []float64{0, 1, 2, 3, 4, 5}},
		{"cubic kind", domain.Params{"dt": 1.0, "kind": "cubic"}, []float64{0, 1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Interpolate(values, times, "resample_grid", tt.params)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, res.Time, 1e-9)
			require.Len(t, res.Values, len(tt.want))
			require.Len(t, res.Info.Mask, len(tt.want))
			for i, g := range res.Time {
				assert.InDelta(t, 2*g, res.Values[i], 1e-9)
			}
			assert.Equal(t, "interpolate:resample_grid", res.Metadata.Operation)
		})
	}
}

func TestInterpolateResampleGridCubicNeedsFourPoints(t *testing.T) {
	e := newTestEngine(t)
	values := []float64{0, 1, nan, 4}
	times := []float64{0, 1, 2, 3}

	_, err := e.Interpolate(values, times, "resample_grid", domain.Params{"kind": "cubic", "n_points": 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrTypeInterpolation, appErr.Type)
	assert.Equal(t, "cubic", appErr.Context["kind"])
	assert.Equal(t, 3, appErr.Context["valid_points"])

	res, err := e.Interpolate(values, times, "resample_grid", domain.Params{"kind": "linear", "n_points": 5})
	require.NoError(t, err)
	assert.Len(t, res.Values, 5)
}

func TestInterpolateResampleGridMask(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Interpolate([]float64{0, 2, 4, nan, 8, 10}, []float64{0, 1, 2, 3, 4, 5},
		"resample_grid", domain.Params{"dt": 1.0})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true, false, false}, res.Info.Mask)
}

func TestInterpolateResampleGridErrors(t *testing.T) {
	e := newTestEngine(t)
	values := []float64{0, 1, 2, 3}
	times := []float64{0, 1, 2, 3}

	tests := []struct {
		name   string
		params domain.Params
	}{
		{"too many points", domain.Params{"dt": 0.001, "max_points": 100}},
		{"n_points too small", domain.Params{"n_points": 1}},
		{"n_points above cap", domain.Params{"n_points": 500, "max_points": 100}},
		{"negative dt", domain.Params{"dt": -1.0}},
		{"bad frequency", domain.Params{"frequency": "fast"}},
		{"bad kind", domain.Params{"kind": "quintic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Interpolate(values, times, "resample_grid", tt.params)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), "got %v", err)
		})
	}

	_, err := e.Interpolate([]float64{1, nan}, []float64{0, 1}, "resample_grid", nil)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

func TestResampleOnto(t *testing.T) {
	e := newTestEngine(t)
	values := []float64{nan, 2, 4, nan, 8}
	times := []float64{0, 1, 2, 3, 4}

	res, err := e.ResampleOnto(values, times, []float64{0, 0.5, 1, 2.5, 4, 5}, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Values[0]), "before the first valid sample")
	assert.InDelta(t, 5, res.Values[3], 1e-12)
	assert.True(t, math.IsNaN(res.Values[1]))
	assert.True(t, math.IsNaN(res.Values[5]), "after the last valid sample")
	assert.Equal(t, []bool{false, false, false, true, false, false}, res.Info.Mask)
	assert.Equal(t, 2.0, res.Values[2])
	assert.Equal(t, 8.0, res.Values[4])
	assert.Equal(t, 6, res.Metadata.Parameters["fitted_points"])

	_, err = e.ResampleOnto([]float64{1}, []float64{0, 1}, []float64{0}, nil)
	assert.ErrorIs(t, err, apperrors.ErrLengthMismatch)
}

func TestEvaluate(t *testing.T) {
	e := newTestEngine(t)
	values := []float64{0, 2, nan, 6}
	times := []float64{0, 1, 2, 3}

	got, err := e.Evaluate(values, times, []float64{0.5, 2, nan, 10}, "linear", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, got[0], 1e-12)
	assert.InDelta(t, 4, got[1], 1e-12)
	assert.True(t, math.IsNaN(got[2]))
	assert.InDelta(t, 6, got[3], 1e-12)

	got, err = e.Evaluate(values, times, []float64{1.5}, "resample_grid", domain.Params{"kind": "linear"})
	require.NoError(t, err)
	assert.InDelta(t, 3, got[0], 1e-12)
}

func TestEngineUsesAcceleratedMask(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	plain := NewEngine(Capabilities{}, logger)
	fast := NewEngine(AllCapabilities(), logger)

	values := []float64{1, nan, 3, math.Inf(1), 5, nan, 7}
	times := []float64{0, 1, 2, 3, 4, 5, 6}

	a, err := plain.Interpolate(values, times, "linear", nil)
	require.NoError(t, err)
	b, err := fast.Interpolate(values, times, "linear", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Info, b.Info)
}
