// Package calculus computes derivatives, cumulative integrals and the area
// between curves over possibly non-uniform time axes.
package calculus

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/interp"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/interpolation"
	"scadalab/pkg/contracts/domain"
)

// Result pairs the output array with provenance. Total is the final
// cumulative value for Integral and AreaBetween.
type Result struct {
	Values   []float64             `json:"values"`
	Total    float64               `json:"total"`
	Metadata domain.ResultMetadata `json:"metadata"`
}

// Derivative methods
const (
	MethodFiniteDiff = "finite_diff"
	MethodSpline     = "spline"
)

// NaN policies for integration
const (
	NaNPropagate = "propagate"
	NaNOmit      = "omit"
)

// SupportedMethods lists the derivative methods
func SupportedMethods() []string {
	return []string{MethodFiniteDiff, MethodSpline}
}

// Derivative differentiates values over t, order in 1..3. The output has
// the input length.
func Derivative(values, t []float64, order int, method string, params domain.Params) (*Result, error) {
	start := time.Now()

	m := strings.ToLower(strings.TrimSpace(method))
	if m != MethodFiniteDiff && m != MethodSpline {
		return nil, apperrors.UnsupportedMethod("derivative", method, SupportedMethods())
	}
	if order < 1 || order > 3 {
		return nil, apperrors.InvalidParameter("derivative", "order", order, "must be 1, 2 or 3")
	}
	if err := checkAxis("derivative", t, map[string][]float64{"values": values}); err != nil {
		return nil, err
	}
	if len(t) < 2 {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeCalculus, m, len(t), 2)
	}

	var out []float64
	switch m {
	case MethodFiniteDiff:
		out = values
		for k := 0; k < order; k++ {
			out = finiteDiff(out, t)
		}
	case MethodSpline:
		d, err := splineDerivative(values, t)
		if err != nil {
			return nil, err
		}
		out = d
		for k := 1; k < order; k++ {
			out = finiteDiff(out, t)
		}
	}

	params = params.Clone()
	params["order"] = order
	return &Result{
		Values:   out,
		Metadata: domain.NewResultMetadata("derivative:"+m, params, start),
	}, nil
}

// finiteDiff uses second-order central differences for non-uniform spacing
// in the interior and first-order one-sided differences at the edges
func finiteDiff(f, t []float64) []float64 {
	n := len(f)
	d := make([]float64, n)
	d[0] = (f[1] - f[0]) / (t[1] - t[0])
	d[n-1] = (f[n-1] - f[n-2]) / (t[n-1] - t[n-2])
	for i := 1; i < n-1; i++ {
		h1 := t[i] - t[i-1]
		h2 := t[i+1] - t[i]
		d[i] = -h2/(h1*(h1+h2))*f[i-1] +
			(h2-h1)/(h1*h2)*f[i] +
			h1/(h2*(h1+h2))*f[i+1]
	}
	return d
}

func splineDerivative(values, t []float64) ([]float64, error) {
	xs, ys := interpolation.ValidPoints(values, t)
	if len(xs) < 4 {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeCalculus, MethodSpline, len(xs), 4)
	}
	var s interp.NotAKnotCubic
	if err := s.Fit(xs, ys); err != nil {
		return nil, apperrors.NewCalculusError("fit_failed", "spline fit failed", err)
	}
	out := make([]float64, len(t))
	for i, x := range t {
		out[i] = s.PredictDerivative(x)
	}
	return out, nil
}

// Integral is the cumulative trapezoid of values over t. The first element
// is 0 and Total is the last element. nan_policy "propagate" (default)
// turns everything after a NaN into NaN; "omit" skips intervals touching a
// NaN.
func Integral(values, t []float64, params domain.Params) (*Result, error) {
	start := time.Now()
	if err := checkAxis("integral", t, map[string][]float64{"values": values}); err != nil {
		return nil, err
	}
	cum, err := cumulativeTrapezoid(values, t, params)
	if err != nil {
		return nil, err
	}
	return &Result{
		Values:   cum,
		Total:    last(cum),
		Metadata: domain.NewResultMetadata("integral:trapezoid", params, start),
	}, nil
}

// AreaBetween integrates upper - lower over t, or |upper - lower| when the
// absolute parameter is true
func AreaBetween(upper, lower, t []float64, params domain.Params) (*Result, error) {
	start := time.Now()
	if len(upper) != len(lower) || len(upper) != len(t) {
		return nil, apperrors.LengthMismatch(apperrors.ErrTypeCalculus, "area_between",
			map[string]int{"upper": len(upper), "lower": len(lower), "time": len(t)})
	}
	if err := checkAxis("area_between", t, nil); err != nil {
		return nil, err
	}

	absolute := params.Bool("absolute", false)
	diff := make([]float64, len(upper))
	for i := range diff {
		diff[i] = upper[i] - lower[i]
		if absolute {
			diff[i] = math.Abs(diff[i])
		}
	}

	cum, err := cumulativeTrapezoid(diff, t, params)
	if err != nil {
		return nil, err
	}
	return &Result{
		Values:   cum,
		Total:    last(cum),
		Metadata: domain.NewResultMetadata("area_between:trapezoid", params, start),
	}, nil
}

func cumulativeTrapezoid(f, t []float64, params domain.Params) ([]float64, error) {
	policy := strings.ToLower(params.String("nan_policy", NaNPropagate))
	if policy != NaNPropagate && policy != NaNOmit {
		return nil, apperrors.InvalidParameter("integral", "nan_policy", policy, "expected propagate or omit")
	}

	out := make([]float64, len(f))
	if len(f) == 0 {
		return out, nil
	}
	acc := 0.0
	for i := 1; i < len(f); i++ {
		area := 0.5 * (f[i] + f[i-1]) * (t[i] - t[i-1])
		if policy == NaNOmit && math.IsNaN(area) {
			area = 0
		}
		acc += area
		out[i] = acc
	}
	return out, nil
}

// checkAxis requires every array to match len(t) and t to be strictly
// increasing
func checkAxis(op string, t []float64, arrays map[string][]float64) error {
	for name, a := range arrays {
		if len(a) != len(t) {
			return apperrors.LengthMismatch(apperrors.ErrTypeCalculus, op,
				map[string]int{name: len(a), "time": len(t)})
		}
	}
	for i := 1; i < len(t); i++ {
		if !(t[i] > t[i-1]) {
			return apperrors.NewCalculusError("non_monotonic_time", "time axis must be strictly increasing", nil).
				WithContext("operation", op).
				WithContext("index", i)
		}
	}
	for i, x := range t {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return apperrors.NewCalculusError("non_monotonic_time", "time axis contains non-finite values", nil).
				WithContext("operation", op).
				WithContext("index", i)
		}
	}
	return nil
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}
