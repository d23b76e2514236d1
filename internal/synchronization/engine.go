// Package synchronization aligns several independently sampled series onto
// one shared time axis.
package synchronization

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/interpolation"
	"scadalab/pkg/contracts/domain"
)

// Method identifies a synchronization algorithm
type Method int

const (
	MethodCommonGrid Method = iota
	MethodKalman
	MethodDTW
)

var methodNames = []string{
	MethodCommonGrid: "common_grid_interpolate",
	MethodKalman:     "kalman",
	MethodDTW:        "dtw",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "unknown"
	}
	return methodNames[m]
}

// SupportedMethods lists every method name in declaration order
func SupportedMethods() []string {
	out := make([]string, len(methodNames))
	copy(out, methodNames)
	return out
}

// ParseMethod resolves a method name or returns a CONFIG error
func ParseMethod(name string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range methodNames {
		if n == key {
			return Method(i), nil
		}
	}
	return 0, apperrors.UnsupportedMethod("synchronization", name, SupportedMethods())
}

// Grid policies
const (
	PolicyIntersection = "intersection"
	PolicyUnion        = "union"
)

// Result holds every input series on TCommon. Synced has exactly the input
// keys and every array has len(TCommon).
type Result struct {
	TCommon     []float64                           `json:"t_common"`
	Synced      map[string][]float64                `json:"synced_series"`
	Info        map[string]domain.InterpolationInfo `json:"interpolation_info"`
	Uncertainty map[string][]float64                `json:"uncertainty,omitempty"`
	Metadata    domain.ResultMetadata               `json:"metadata"`
}

// Options are the engine defaults; params override them per call
type Options struct {
	GridPolicy    string
	MaxGridPoints int
}

// DefaultOptions returns intersection with a one million point cap
func DefaultOptions() Options {
	return Options{GridPolicy: PolicyIntersection, MaxGridPoints: interpolation.DefaultMaxGridPoints}
}

// Engine synchronizes series using the interpolation engine as primitive
type Engine struct {
	interp *interpolation.Engine
	opts   Options
	logger *slog.Logger
}

// NewEngine creates a synchronization engine
func NewEngine(interp *interpolation.Engine, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GridPolicy == "" {
		opts.GridPolicy = PolicyIntersection
	}
	if opts.MaxGridPoints <= 0 {
		opts.MaxGridPoints = interpolation.DefaultMaxGridPoints
	}
	return &Engine{
		interp: interp,
		opts:   opts,
		logger: logger.With(slog.String("component", "synchronization")),
	}
}

// Synchronize aligns series[k] sampled at times[k] for every key k.
func (e *Engine) Synchronize(series, times map[string][]float64, method string, params domain.Params) (*Result, error) {
	start := time.Now()

	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	keys, err := checkInputs(series, times)
	if err != nil {
		return nil, err
	}

	params = params.Clone()
	if !params.Has("max_points") {
		params["max_points"] = e.opts.MaxGridPoints
	}
	policy := strings.ToLower(params.String("grid_policy", e.opts.GridPolicy))

	grid, err := CommonGrid(series, times, policy, params)
	if err != nil {
		return nil, err
	}

	res := &Result{
		TCommon: grid,
		Synced:  make(map[string][]float64, len(keys)),
		Info:    make(map[string]domain.InterpolationInfo, len(keys)),
	}

	switch m {
	case MethodCommonGrid:
		err = e.commonGrid(res, keys, series, times, params)
	case MethodKalman:
		err = e.kalman(res, keys, series, times, params)
	case MethodDTW:
		err = e.dtw(res, keys, series, times, params)
	}
	if err != nil {
		return nil, err
	}

	res.Metadata = domain.NewResultMetadata("synchronize:"+m.String(), params, start)
	res.Metadata.Parameters["grid_policy"] = policy
	res.Metadata.Parameters["series_keys"] = keys

	e.logger.Debug("synchronization complete",
		slog.String("method", m.String()),
		slog.Int("series", len(keys)),
		slog.Int("grid_points", len(grid)),
		slog.Float64("duration_ms", res.Metadata.DurationMS))
	return res, nil
}

// commonGrid evaluates each series' interpolant on the grid. Grid points
// that coincide with a valid sample keep the measured value.
func (e *Engine) commonGrid(res *Result, keys []string, series, times map[string][]float64, params domain.Params) error {
	interpMethod := params.String("interp_method", interpolation.MethodLinear.String())
	for _, k := range keys {
		vals, err := e.interp.Evaluate(series[k], times[k], res.TCommon, interpMethod, params)
		if err != nil {
			return withSeries(err, k)
		}
		res.Synced[k] = vals
		res.Info[k] = gridInfo(series[k], times[k], res.TCommon, vals, MethodCommonGrid.String()+":"+interpMethod)
	}
	return nil
}

func gridInfo(values, t, grid, out []float64, tag string) domain.InterpolationInfo {
	xs, ys := interpolation.ValidPoints(values, t)
	measured := make(map[float64]float64, len(xs))
	for i, x := range xs {
		measured[x] = ys[i]
	}
	info := domain.NewInterpolationInfo(len(grid))
	for i, g := range grid {
		if v, ok := measured[g]; ok {
			out[i] = v
			continue
		}
		info.Mark(i, tag)
	}
	return info
}

// checkInputs requires identical key sets and per-key equal lengths and
// returns the keys sorted
func checkInputs(series, times map[string][]float64) ([]string, error) {
	if len(series) == 0 {
		return nil, apperrors.NewAppValidationError("no_series", "no series to synchronize")
	}

	var missing, extra []string
	for k := range series {
		if _, ok := times[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range times {
		if _, ok := series[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return nil, apperrors.NewAppValidationError("key_mismatch", "series and time keys differ").
			WithContext("missing_time", missing).
			WithContext("missing_series", extra)
	}

	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(series[k]) != len(times[k]) {
			return nil, apperrors.LengthMismatch(apperrors.ErrTypeValidation, fmt.Sprintf("series %q", k),
				map[string]int{"values": len(series[k]), "time": len(times[k])}).
				WithContext("series", k)
		}
	}
	return keys, nil
}

func withSeries(err error, key string) error {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.WithContext("series", key)
	}
	return err
}
