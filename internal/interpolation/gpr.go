package interpolation

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

const (
	minGPRPoints            = 2
	defaultMaxTrainingPoint = 2000
	// hyperparameter search runs on a stride subsample of this size
	searchPoints = 300
)

// gprModel is a Gaussian process with an RBF kernel plus white noise,
// trained on standardised targets
type gprModel struct {
	xs          []float64
	alpha       *mat.VecDense
	chol        mat.Cholesky
	lengthScale float64
	noise       float64
	mean, scale float64
	logML       float64
	seed        *int64
}

func (g *gprModel) Fitted() map[string]any {
	out := map[string]any{
		"length_scale":            g.lengthScale,
		"noise":                   g.noise,
		"log_marginal_likelihood": g.logML,
		"training_points":         len(g.xs),
	}
	if g.seed != nil {
		out["seed"] = *g.seed
	}
	return out
}

// fitGPR trains the process. Parameters: length_scale, noise, optimize
// (true: deterministic grid search over the log marginal likelihood),
// max_training_points (2000) and seed (random subsampling instead of a
// fixed stride when the training set is too large).
func fitGPR(xs, ys []float64, params domain.Params) (predictor, error) {
	if len(xs) < minGPRPoints {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation, MethodGPR.String(), len(xs), minGPRPoints)
	}

	maxPoints := params.Int("max_training_points", defaultMaxTrainingPoint)
	if maxPoints < minGPRPoints {
		return nil, apperrors.InvalidParameter("interpolation", "max_training_points", maxPoints, "must be at least 2")
	}

	var seed *int64
	if len(xs) > maxPoints {
		if params.Has("seed") {
			s := int64(params.Int("seed", 0))
			seed = &s
			xs, ys = subsampleRandom(xs, ys, maxPoints, s)
		} else {
			xs, ys = subsampleStride(xs, ys, maxPoints)
		}
	}

	mean, std := stat.MeanStdDev(ys, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	z := make([]float64, len(ys))
	for i, y := range ys {
		z[i] = (y - mean) / std
	}

	span := xs[len(xs)-1] - xs[0]
	if span <= 0 {
		span = 1
	}

	lengthScale := params.Float("length_scale", 0)
	noise := params.Float("noise", 0)
	if lengthScale < 0 {
		return nil, apperrors.InvalidParameter("interpolation", "length_scale", lengthScale, "must be positive")
	}
	if noise < 0 {
		return nil, apperrors.InvalidParameter("interpolation", "noise", noise, "must be non-negative")
	}

	lengths := []float64{lengthScale}
	noises := []float64{noise}
	if params.Bool("optimize", true) {
		if lengthScale == 0 {
			step := medianSpacing(xs)
			if step <= 0 {
				step = span / float64(len(xs))
			}
			lengths = floats.LogSpan(make([]float64, 16), step, span)
		}
		if !params.Has("noise") {
			noises = []float64{1e-6, 1e-4, 1e-3, 1e-2, 5e-2, 1e-1, 3e-1}
		}
	} else {
		if lengthScale == 0 {
			lengths[0] = span / 10
		}
		if !params.Has("noise") {
			noises[0] = 1e-4
		}
	}

	bestL, bestN := lengths[0], noises[0]
	if len(lengths)*len(noises) > 1 {
		selX, selZ := xs, z
		if len(selX) > searchPoints {
			selX, selZ = subsampleStride(xs, z, searchPoints)
		}
		bestLML := math.Inf(-1)
		for _, l := range lengths {
			for _, nz := range noises {
				m, ok := trainGPR(selX, selZ, l, nz)
				if ok && m.logML > bestLML {
					bestLML, bestL, bestN = m.logML, l, nz
				}
			}
		}
	}

	best, ok := trainGPR(xs, z, bestL, bestN)
	if !ok {
		return nil, apperrors.NewInterpolationError("fit_failed", "gaussian process covariance is not positive definite", nil).
			WithContext("training_points", len(xs))
	}
	best.mean, best.scale = mean, std
	best.seed = seed
	return best, nil
}

func trainGPR(xs, z []float64, lengthScale, noise float64) (*gprModel, bool) {
	n := len(xs)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, 1+noise+1e-10)
		for j := i + 1; j < n; j++ {
			k.SetSym(i, j, rbf(xs[i], xs[j], lengthScale))
		}
	}

	m := &gprModel{xs: xs, lengthScale: lengthScale, noise: noise}
	if !m.chol.Factorize(k) {
		return nil, false
	}
	zv := mat.NewVecDense(n, z)
	m.alpha = mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(m.alpha, zv); err != nil && !isTolerableCondition(err) {
		return nil, false
	}

	m.logML = -0.5*mat.Dot(zv, m.alpha) - 0.5*m.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	if math.IsNaN(m.logML) {
		return nil, false
	}
	return m, true
}

func rbf(a, b, lengthScale float64) float64 {
	d := (a - b) / lengthScale
	return math.Exp(-0.5 * d * d)
}

func (g *gprModel) kstar(x float64) *mat.VecDense {
	ks := mat.NewVecDense(len(g.xs), nil)
	for i, xi := range g.xs {
		ks.SetVec(i, rbf(x, xi, g.lengthScale))
	}
	return ks
}

// Predict returns the posterior mean
func (g *gprModel) Predict(x float64) float64 {
	return g.mean + g.scale*mat.Dot(g.kstar(x), g.alpha)
}

// StdDev returns the posterior standard deviation of the latent function
func (g *gprModel) StdDev(x float64) float64 {
	ks := g.kstar(x)
	var v mat.VecDense
	if err := g.chol.SolveVecTo(&v, ks); err != nil && !isTolerableCondition(err) {
		return math.NaN()
	}
	variance := 1 - mat.Dot(ks, &v)
	if variance < 0 {
		variance = 0
	}
	return g.scale * math.Sqrt(variance)
}

func subsampleStride(xs, ys []float64, limit int) ([]float64, []float64) {
	n := len(xs)
	outX := make([]float64, 0, limit)
	outY := make([]float64, 0, limit)
	for i := 0; i < limit; i++ {
		j := int(math.Round(float64(i) * float64(n-1) / float64(limit-1)))
		outX = append(outX, xs[j])
		outY = append(outY, ys[j])
	}
	return outX, outY
}

func subsampleRandom(xs, ys []float64, limit int, seed int64) ([]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(xs))[:limit]
	sort.Ints(idx)
	outX := make([]float64, limit)
	outY := make([]float64, limit)
	for i, j := range idx {
		outX[i] = xs[j]
		outY[i] = ys[j]
	}
	return outX, outY
}
