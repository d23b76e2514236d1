package interpolation

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// minSplinePoints is the fewest valid samples a cubic fit accepts
const minSplinePoints = 4

// Boundary conditions accepted by spline_cubic's bc_type
const (
	BCNotAKnot = "not-a-knot"
	BCNatural  = "natural"
	BCClamped  = "clamped"
)

func fitCubic(xs, ys []float64, params domain.Params) (predictor, error) {
	if len(xs) < minSplinePoints {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
			MethodSplineCubic.String(), len(xs), minSplinePoints)
	}

	bc := strings.ToLower(params.String("bc_type", BCNotAKnot))
	var fitter interface {
		predictor
		Fit(xs, ys []float64) error
	}
	switch bc {
	case BCNotAKnot, "not_a_knot":
		fitter = &interp.NotAKnotCubic{}
	case BCNatural:
		fitter = &interp.NaturalCubic{}
	case BCClamped:
		fitter = &interp.ClampedCubic{}
	default:
		return nil, apperrors.InvalidParameter("interpolation", "bc_type", bc,
			"expected not-a-knot, natural or clamped")
	}

	if err := fitter.Fit(xs, ys); err != nil {
		return nil, apperrors.NewInterpolationError("fit_failed", "cubic spline fit failed", err).
			WithContext("bc_type", bc)
	}
	return fitter, nil
}

// smoothingSpline is a natural cubic spline through the smoothed knot
// values. lambda is the roughness penalty weight.
type smoothingSpline struct {
	interp.NaturalCubic
	lambda float64
	rss    float64
}

func (s *smoothingSpline) Fitted() map[string]any {
	return map[string]any{"lambda": s.lambda, "residual_sum_squares": s.rss}
}

// fitSmoothingSpline minimises sum (y-g)^2 + lambda * integral g''^2.
// With an explicit "lambda" parameter that weight is used directly;
// otherwise lambda is searched so the residual sum of squares matches
// "smoothing_factor" (default: the number of valid points).
func fitSmoothingSpline(xs, ys []float64, params domain.Params) (predictor, error) {
	n := len(xs)
	if n < minSplinePoints {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
			MethodSmoothingSpline.String(), n, minSplinePoints)
	}

	sys := newReinsch(xs)

	var lambda float64
	if params.Has("lambda") {
		lambda = params.Float("lambda", 0)
		if lambda < 0 {
			return nil, apperrors.InvalidParameter("interpolation", "lambda", lambda, "must be non-negative")
		}
	} else {
		s := params.Float("smoothing_factor", float64(n))
		if s < 0 {
			return nil, apperrors.InvalidParameter("interpolation", "smoothing_factor", s, "must be non-negative")
		}
		var err error
		lambda, err = sys.lambdaForRSS(ys, s)
		if err != nil {
			return nil, err
		}
	}

	g, err := sys.smooth(ys, lambda)
	if err != nil {
		return nil, err
	}

	out := &smoothingSpline{lambda: lambda, rss: rss(ys, g)}
	if err := out.NaturalCubic.Fit(xs, g); err != nil {
		return nil, apperrors.NewInterpolationError("fit_failed", "smoothing spline fit failed", err)
	}
	return out, nil
}

// reinsch holds the banded Reinsch matrices for a fixed knot sequence:
// Q is n×(n-2) tridiagonal, R is (n-2)×(n-2) symmetric tridiagonal.
type reinsch struct {
	n  int
	h  []float64
	q  [][3]float64 // q[j] = entries at rows j, j+1, j+2 of column j
	rd []float64    // R diagonal
	ro []float64    // R first off-diagonal
}

func newReinsch(xs []float64) *reinsch {
	n := len(xs)
	h := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
	}
	m := n - 2
	r := &reinsch{n: n, h: h, q: make([][3]float64, m), rd: make([]float64, m), ro: make([]float64, m)}
	for j := 0; j < m; j++ {
		r.q[j] = [3]float64{1 / h[j], -1/h[j] - 1/h[j+1], 1 / h[j+1]}
		r.rd[j] = (h[j] + h[j+1]) / 3
		if j+1 < m {
			r.ro[j] = h[j+1] / 6
		}
	}
	return r
}

// smooth returns the fitted knot values for lambda
func (r *reinsch) smooth(ys []float64, lambda float64) ([]float64, error) {
	g := make([]float64, r.n)
	if lambda == 0 {
		copy(g, ys)
		return g, nil
	}

	m := r.n - 2
	k := 2
	if m-1 < k {
		k = m - 1
	}

	// A = R + lambda * QᵀQ, pentadiagonal
	a := mat.NewSymBandDense(m, k, nil)
	for j := 0; j < m; j++ {
		qj := r.q[j]
		a.SetSymBand(j, j, r.rd[j]+lambda*(qj[0]*qj[0]+qj[1]*qj[1]+qj[2]*qj[2]))
		if j+1 < m && k >= 1 {
			qn := r.q[j+1]
			a.SetSymBand(j, j+1, r.ro[j]+lambda*(qj[1]*qn[0]+qj[2]*qn[1]))
		}
		if j+2 < m && k >= 2 {
			qn := r.q[j+2]
			a.SetSymBand(j, j+2, lambda*qj[2]*qn[0])
		}
	}

	// rhs = Qᵀy
	rhs := mat.NewVecDense(m, nil)
	for j := 0; j < m; j++ {
		qj := r.q[j]
		rhs.SetVec(j, qj[0]*ys[j]+qj[1]*ys[j+1]+qj[2]*ys[j+2])
	}

	var chol mat.BandCholesky
	if !chol.Factorize(a) {
		return nil, apperrors.NewInterpolationError("fit_failed", "smoothing spline system is not positive definite", nil)
	}
	var gamma mat.VecDense
	if err := chol.SolveVecTo(&gamma, rhs); err != nil && !isTolerableCondition(err) {
		return nil, apperrors.NewInterpolationError("fit_failed", "smoothing spline solve failed", err)
	}

	// g = y - lambda * Q gamma
	copy(g, ys)
	for j := 0; j < m; j++ {
		gj := lambda * gamma.AtVec(j)
		qj := r.q[j]
		g[j] -= qj[0] * gj
		g[j+1] -= qj[1] * gj
		g[j+2] -= qj[2] * gj
	}
	return g, nil
}

// lambdaForRSS bisects log(lambda) until the residual sum of squares hits
// target. Targets beyond the straight-line limit return the largest lambda.
func (r *reinsch) lambdaForRSS(ys []float64, target float64) (float64, error) {
	if target <= 0 {
		return 0, nil
	}

	scale := math.Pow(floats.Sum(r.h)/float64(len(r.h)), 3)
	lo, hi := math.Log(scale*1e-12), math.Log(scale*1e12)

	gHi, err := r.smooth(ys, math.Exp(hi))
	if err != nil {
		return 0, err
	}
	if rss(ys, gHi) <= target {
		return math.Exp(hi), nil
	}

	for iter := 0; iter < 80; iter++ {
		mid := 0.5 * (lo + hi)
		g, err := r.smooth(ys, math.Exp(mid))
		if err != nil {
			return 0, err
		}
		if rss(ys, g) > target {
			hi = mid
		} else {
			lo = mid
		}
		if hi-lo < 1e-6 {
			break
		}
	}
	return math.Exp(0.5 * (lo + hi)), nil
}

func rss(ys, g []float64) float64 {
	s := 0.0
	for i := range ys {
		d := ys[i] - g[i]
		s += d * d
	}
	return s
}

// isTolerableCondition accepts a near-singular warning from gonum as long
// as the condition number is finite
func isTolerableCondition(err error) bool {
	c, ok := err.(mat.Condition)
	return ok && !math.IsInf(float64(c), 0)
}
