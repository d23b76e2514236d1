package interpolation

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// Result pairs interpolated values with provenance. Time is set only when
// the method changes the time axis (resample_grid); otherwise the input
// axis applies. Uncertainty is the posterior standard deviation for gpr.
type Result struct {
	Values      []float64                `json:"values"`
	Time        []float64                `json:"time,omitempty"`
	Info        domain.InterpolationInfo `json:"interpolation_info"`
	Uncertainty []float64                `json:"uncertainty,omitempty"`
	Metadata    domain.ResultMetadata    `json:"metadata"`
}

// Engine runs interpolation methods. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	caps    Capabilities
	logger  *slog.Logger
	missing func([]float64) []bool
}

// NewEngine creates an engine bound to the resolved capabilities
func NewEngine(caps Capabilities, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		caps:    caps,
		logger:  logger.With(slog.String("component", "interpolation")),
		missing: MissingMask,
	}
	if caps.Accelerated {
		e.missing = MissingMaskUnrolled
	}
	return e
}

// Capabilities returns the capabilities the engine was built with
func (e *Engine) Capabilities() Capabilities {
	return e.caps
}

// predictor is a fitted model; the gonum interpolators satisfy it directly
type predictor = interp.Predictor

// stdPredictor also reports a posterior standard deviation
type stdPredictor interface {
	predictor
	StdDev(x float64) float64
}

// fittedParams is implemented by models that choose hyperparameters
type fittedParams interface {
	Fitted() map[string]any
}

// Interpolate fills or resamples values over t. Gap-filling methods compute
// only the missing positions; spline_cubic and smoothing_spline evaluate the
// fitted curve everywhere. The mask in Info marks exactly the positions that
// were not valid on input and received a finite value.
func (e *Engine) Interpolate(values, t []float64, method string, params domain.Params) (*Result, error) {
	start := time.Now()

	m, model, err := e.prepare(values, t, method, params)
	if err != nil {
		return nil, err
	}
	if m == MethodResampleGrid {
		return e.resample(values, t, params, start)
	}

	n := len(values)
	out := make([]float64, n)
	copy(out, values)
	info := domain.NewInterpolationInfo(n)
	missing := e.missing(values)
	evalAll := m == MethodSplineCubic || m == MethodSmoothingSpline

	var uncertainty []float64
	sp, hasStd := model.(stdPredictor)
	if hasStd {
		uncertainty = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		if !isFinite(t[i]) || (!missing[i] && !evalAll) {
			continue
		}
		v := model.Predict(t[i])
		out[i] = v
		if missing[i] && isFinite(v) {
			info.Mark(i, m.String())
			if hasStd {
				uncertainty[i] = sp.StdDev(t[i])
			}
		}
	}

	meta := domain.NewResultMetadata("interpolate:"+m.String(), params, start)
	recordFitted(&meta, model)

	e.logger.Debug("interpolation complete",
		slog.String("method", m.String()),
		slog.Int("points", n),
		slog.Int("filled", info.Count()),
		slog.Float64("duration_ms", meta.DurationMS))

	return &Result{
		Values:      out,
		Info:        info,
		Uncertainty: uncertainty,
		Metadata:    meta,
	}, nil
}

// Evaluate fits method to the valid samples of (t, values) and returns the
// model at every query time. Non-finite query times yield NaN.
func (e *Engine) Evaluate(values, t, tQuery []float64, method string, params domain.Params) ([]float64, error) {
	m, model, err := e.prepare(values, t, method, params)
	if err != nil {
		return nil, err
	}
	if m == MethodResampleGrid {
		xs, ys := validPoints(values, t, e.missing)
		model, err = fitResampleKind(xs, ys, params)
		if err != nil {
			return nil, err
		}
	}

	out := make([]float64, len(tQuery))
	for i, q := range tQuery {
		if !isFinite(q) {
			out[i] = math.NaN()
			continue
		}
		out[i] = model.Predict(q)
	}
	return out, nil
}

// prepare parses the method, checks capabilities and lengths, and fits the
// model on the valid samples. The resample_grid model is built separately.
func (e *Engine) prepare(values, t []float64, method string, params domain.Params) (Method, predictor, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return 0, nil, err
	}
	if capability, needs := m.Requirement(); needs && !e.caps.Has(capability) {
		return 0, nil, apperrors.MethodUnavailable(m.String(), capability)
	}
	if len(values) != len(t) {
		return 0, nil, apperrors.LengthMismatch(apperrors.ErrTypeInterpolation, "interpolate",
			map[string]int{"values": len(values), "time": len(t)})
	}
	if m == MethodResampleGrid {
		return m, nil, nil
	}

	xs, ys := validPoints(values, t, e.missing)
	model, err := fit(m, xs, ys, params)
	if err != nil {
		return 0, nil, err
	}
	return m, model, nil
}

func fit(m Method, xs, ys []float64, params domain.Params) (predictor, error) {
	switch m {
	case MethodLinear:
		return fitLinear(xs, ys)
	case MethodSplineCubic:
		return fitCubic(xs, ys, params)
	case MethodSmoothingSpline:
		return fitSmoothingSpline(xs, ys, params)
	case MethodMLS:
		return fitMLS(xs, ys, params)
	case MethodGPR:
		return fitGPR(xs, ys, params)
	case MethodLombScargle:
		return fitLombScargle(xs, ys, params)
	default:
		return nil, apperrors.UnsupportedMethod("interpolation", m.String(), SupportedMethods())
	}
}

func fitLinear(xs, ys []float64) (predictor, error) {
	switch len(xs) {
	case 0:
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation, MethodLinear.String(), 0, 1)
	case 1:
		return interp.Constant(ys[0]), nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, apperrors.NewInterpolationError("fit_failed", "linear fit failed", err)
	}
	return pl, nil
}

// validPoints returns the samples with finite time and value, sorted by
// time. For repeated times the first occurrence in input order wins.
func validPoints(values, t []float64, missing func([]float64) []bool) ([]float64, []float64) {
	mask := missing(values)
	idx := make([]int, 0, len(values))
	for i := range values {
		if !mask[i] && isFinite(t[i]) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return t[idx[a]] < t[idx[b]] })

	xs := make([]float64, 0, len(idx))
	ys := make([]float64, 0, len(idx))
	for _, i := range idx {
		if len(xs) > 0 && t[i] == xs[len(xs)-1] {
			continue
		}
		xs = append(xs, t[i])
		ys = append(ys, values[i])
	}
	return xs, ys
}

func recordFitted(meta *domain.ResultMetadata, model predictor) {
	fp, ok := model.(fittedParams)
	if !ok {
		return
	}
	for k, v := range fp.Fitted() {
		if k == "seed" {
			if seed, isInt := v.(int64); isInt {
				*meta = meta.WithSeed(seed)
			}
			continue
		}
		meta.Parameters["fitted_"+k] = v
	}
}
