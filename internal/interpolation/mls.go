package interpolation

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// mlsModel evaluates a Gaussian-weighted local polynomial at each query
type mlsModel struct {
	xs, ys    []float64
	degree    int
	bandwidth float64
	neighbors int
}

func (m *mlsModel) Fitted() map[string]any {
	return map[string]any{"bandwidth": m.bandwidth, "degree": m.degree, "neighbors": m.neighbors}
}

// fitMLS prepares a moving least squares model. Parameters: degree (2),
// bandwidth (3 × median spacing), neighbors (20).
func fitMLS(xs, ys []float64, params domain.Params) (predictor, error) {
	degree := params.Int("degree", 2)
	if degree < 0 || degree > 5 {
		return nil, apperrors.InvalidParameter("interpolation", "degree", degree, "must be between 0 and 5")
	}
	need := degree + 1
	if need < 2 {
		need = 2
	}
	if len(xs) < need {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation, MethodMLS.String(), len(xs), need)
	}

	bandwidth := params.Float("bandwidth", 0)
	if bandwidth <= 0 {
		bandwidth = 3 * medianSpacing(xs)
	}
	if bandwidth <= 0 || math.IsNaN(bandwidth) {
		bandwidth = 1
	}

	neighbors := params.Int("neighbors", 20)
	if neighbors < need {
		neighbors = need
	}
	if neighbors > len(xs) {
		neighbors = len(xs)
	}

	return &mlsModel{xs: xs, ys: ys, degree: degree, bandwidth: bandwidth, neighbors: neighbors}, nil
}

// Predict fits the local polynomial centred on x and returns its constant term
func (m *mlsModel) Predict(x float64) float64 {
	lo, hi := nearestWindow(m.xs, x, m.neighbors)
	k := hi - lo
	p := m.degree + 1
	if k < p {
		p = k
	}

	a := mat.NewDense(k, p, nil)
	b := mat.NewVecDense(k, nil)
	for r := 0; r < k; r++ {
		u := (m.xs[lo+r] - x) / m.bandwidth
		w := math.Sqrt(math.Exp(-u * u))
		if w < 1e-150 {
			w = 1e-150
		}
		pow := w
		for c := 0; c < p; c++ {
			a.Set(r, c, pow)
			pow *= u
		}
		b.SetVec(r, w*m.ys[lo+r])
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil && !isTolerableCondition(err) {
		return nearestValue(m.xs, m.ys, x)
	}
	v := coef.AtVec(0)
	if !isFinite(v) {
		return nearestValue(m.xs, m.ys, x)
	}
	return v
}

// nearestWindow returns [lo, hi) of the k samples closest to x in sorted xs
func nearestWindow(xs []float64, x float64, k int) (int, int) {
	n := len(xs)
	i := sort.SearchFloat64s(xs, x)
	lo, hi := i, i
	for hi-lo < k {
		switch {
		case lo == 0:
			hi++
		case hi == n:
			lo--
		case x-xs[lo-1] <= xs[hi]-x:
			lo--
		default:
			hi++
		}
	}
	return lo, hi
}

func nearestValue(xs, ys []float64, x float64) float64 {
	lo, _ := nearestWindow(xs, x, 1)
	return ys[lo]
}

func medianSpacing(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	d := make(stats.Float64Data, len(xs)-1)
	for i := range d {
		d[i] = xs[i+1] - xs[i]
	}
	med, err := d.Median()
	if err != nil {
		return 0
	}
	return med
}
