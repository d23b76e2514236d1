package interpolation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

const (
	defaultHarmonics   = 3
	defaultFrequencies = 500
)

// spectralModel is a sum of sinusoids at the dominant Lomb-Scargle
// frequencies plus the sample mean
type spectralModel struct {
	mean       float64
	freqs      []float64
	cosCoef    []float64
	sinCoef    []float64
	origin     float64
	peakPowers []float64
}

func (s *spectralModel) Predict(x float64) float64 {
	v := s.mean
	u := x - s.origin
	for k, f := range s.freqs {
		w := 2 * math.Pi * f * u
		v += s.cosCoef[k]*math.Cos(w) + s.sinCoef[k]*math.Sin(w)
	}
	return v
}

func (s *spectralModel) Fitted() map[string]any {
	return map[string]any{
		"frequencies": append([]float64(nil), s.freqs...),
		"peak_powers": append([]float64(nil), s.peakPowers...),
	}
}

// fitLombScargle picks the n_harmonics strongest periodogram peaks over
// n_frequencies candidates between 1/span and the pseudo-Nyquist rate
// 0.5/median_spacing, then fits their amplitudes and an offset by least
// squares.
func fitLombScargle(xs, ys []float64, params domain.Params) (predictor, error) {
	harmonics := params.Int("n_harmonics", defaultHarmonics)
	if harmonics < 1 {
		return nil, apperrors.InvalidParameter("interpolation", "n_harmonics", harmonics, "must be at least 1")
	}
	nFreq := params.Int("n_frequencies", defaultFrequencies)
	if nFreq < 2 {
		return nil, apperrors.InvalidParameter("interpolation", "n_frequencies", nFreq, "must be at least 2")
	}
	need := 2*harmonics + 2
	if len(xs) < need {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation,
			MethodLombScargle.String(), len(xs), need)
	}

	mean := stat.Mean(ys, nil)
	centered := make([]float64, len(ys))
	for i, y := range ys {
		centered[i] = y - mean
	}

	span := xs[len(xs)-1] - xs[0]
	step := medianSpacing(xs)
	fMin := 1 / span
	fMax := 0.5 / step
	if fMax <= fMin {
		fMax = fMin * 2
	}
	shifted := make([]float64, len(xs))
	copy(shifted, xs)
	floats.AddConst(-xs[0], shifted)
	grid := floats.Span(make([]float64, nFreq), fMin, fMax)
	power := make([]float64, nFreq)
	for i, f := range grid {
		power[i] = lombScarglePower(shifted, centered, f)
	}

	model := &spectralModel{mean: mean, origin: xs[0]}
	for _, i := range topPeaks(power, harmonics) {
		model.freqs = append(model.freqs, grid[i])
		model.peakPowers = append(model.peakPowers, power[i])
	}
	if len(model.freqs) == 0 {
		// flat periodogram, the mean is the best estimate
		return model, nil
	}

	k := len(model.freqs)
	a := mat.NewDense(len(xs), 2*k+1, nil)
	for r, x := range xs {
		u := x - model.origin
		a.Set(r, 2*k, 1)
		for j, f := range model.freqs {
			w := 2 * math.Pi * f * u
			a.Set(r, 2*j, math.Cos(w))
			a.Set(r, 2*j+1, math.Sin(w))
		}
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(len(centered), centered)); err != nil && !isTolerableCondition(err) {
		return nil, apperrors.NewInterpolationError("fit_failed", "spectral least squares failed", err)
	}
	model.mean += coef.AtVec(2 * k)
	model.cosCoef = make([]float64, k)
	model.sinCoef = make([]float64, k)
	for j := 0; j < k; j++ {
		model.cosCoef[j] = coef.AtVec(2 * j)
		model.sinCoef[j] = coef.AtVec(2*j + 1)
	}
	return model, nil
}

// lombScarglePower is the classical normalised periodogram at frequency f
// for mean-removed samples y
func lombScarglePower(xs, y []float64, f float64) float64 {
	w := 2 * math.Pi * f
	var s2, c2 float64
	for _, x := range xs {
		s2 += math.Sin(2 * w * x)
		c2 += math.Cos(2 * w * x)
	}
	tau := math.Atan2(s2, c2) / (2 * w)

	var yc, ys, cc, ss float64
	for i, x := range xs {
		c := math.Cos(w * (x - tau))
		s := math.Sin(w * (x - tau))
		yc += y[i] * c
		ys += y[i] * s
		cc += c * c
		ss += s * s
	}
	var p float64
	if cc > 0 {
		p += yc * yc / cc
	}
	if ss > 0 {
		p += ys * ys / ss
	}
	return p / 2
}

// topPeaks returns the indices of up to k local maxima with the largest
// values, strongest first
func topPeaks(power []float64, k int) []int {
	var peaks []int
	for i := range power {
		left := i == 0 || power[i] > power[i-1]
		right := i == len(power)-1 || power[i] >= power[i+1]
		if left && right && power[i] > 0 {
			peaks = append(peaks, i)
		}
	}
	sort.SliceStable(peaks, func(a, b int) bool { return power[peaks[a]] > power[peaks[b]] })
	if len(peaks) > k {
		peaks = peaks[:k]
	}
	return peaks
}
