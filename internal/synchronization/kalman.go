package synchronization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/interpolation"
	"scadalab/pkg/contracts/domain"
)

// kalman estimates each series on the grid with a local-level model
// (random walk plus white measurement noise) filtered forward and smoothed
// backward (Rauch-Tung-Striebel) over the merged sample/grid timeline.
//
// process_noise is the random-walk variance per second and
// measurement_noise the observation variance. Defaults are derived from
// the data: the variance of first differences per median interval, and
// one percent of the sample variance.
func (e *Engine) kalman(res *Result, keys []string, series, times map[string][]float64, params domain.Params) error {
	res.Uncertainty = make(map[string][]float64, len(keys))
	for _, k := range keys {
		xs, ys := interpolation.ValidPoints(series[k], times[k])
		if len(xs) == 0 {
			return apperrors.InsufficientData(apperrors.ErrTypeValidation, MethodKalman.String(), 0, 1).
				WithContext("series", k)
		}

		q, r := noiseDefaults(xs, ys)
		q = params.Float("process_noise", q)
		r = params.Float("measurement_noise", r)
		if q < 0 || r <= 0 {
			return apperrors.InvalidParameter("synchronization", "measurement_noise", r,
				"noise variances must be positive").
				WithContext("process_noise", q)
		}

		mean, std := smoothLocalLevel(xs, ys, res.TCommon, q, r)
		res.Synced[k] = mean
		res.Uncertainty[k] = std

		info := domain.NewInterpolationInfo(len(res.TCommon))
		for i := range res.TCommon {
			info.Mark(i, MethodKalman.String())
		}
		res.Info[k] = info
	}
	return nil
}

func noiseDefaults(xs, ys []float64) (float64, float64) {
	variance := 1.0
	if len(ys) > 1 {
		if v := stat.Variance(ys, nil); v > 0 {
			variance = v
		}
	}
	r := 0.01 * variance

	q := variance
	if len(xs) > 2 {
		diffs := make([]float64, len(ys)-1)
		for i := range diffs {
			diffs[i] = ys[i+1] - ys[i]
		}
		step := interpolation.MedianSpacing(xs)
		if v := stat.Variance(diffs, nil); v > 0 && step > 0 {
			q = v / step
		}
	}
	return q, r
}

type timelineEvent struct {
	t      float64
	obs    float64
	hasObs bool
	grid   int // grid index, -1 for observation-only points
}

// smoothLocalLevel runs the filter and smoother and returns the posterior
// mean and standard deviation at each grid time
func smoothLocalLevel(xs, ys, grid []float64, q, r float64) ([]float64, []float64) {
	events := make([]timelineEvent, 0, len(xs)+len(grid))
	for i, x := range xs {
		events = append(events, timelineEvent{t: x, obs: ys[i], hasObs: true, grid: -1})
	}
	for i, g := range grid {
		events = append(events, timelineEvent{t: g, grid: i})
	}
	// observations first at equal times so grid points see the update
	sort.SliceStable(events, func(a, b int) bool {
		if events[a].t != events[b].t {
			return events[a].t < events[b].t
		}
		return events[a].hasObs && !events[b].hasObs
	})

	n := len(events)
	xPred := make([]float64, n)
	pPred := make([]float64, n)
	xFilt := make([]float64, n)
	pFilt := make([]float64, n)

	x, p := ys[0], r+stat.Variance(ys, nil)
	if math.IsNaN(p) || p <= 0 {
		p = r
	}
	prevT := events[0].t
	for i, ev := range events {
		dt := ev.t - prevT
		prevT = ev.t
		if i > 0 {
			p += q * dt
		}
		xPred[i], pPred[i] = x, p

		if ev.hasObs {
			gain := p / (p + r)
			x += gain * (ev.obs - x)
			p *= 1 - gain
		}
		xFilt[i], pFilt[i] = x, p
	}

	xs2 := make([]float64, n)
	ps2 := make([]float64, n)
	xs2[n-1], ps2[n-1] = xFilt[n-1], pFilt[n-1]
	for i := n - 2; i >= 0; i-- {
		c := 0.0
		if pPred[i+1] > 0 {
			c = pFilt[i] / pPred[i+1]
		}
		xs2[i] = xFilt[i] + c*(xs2[i+1]-xPred[i+1])
		ps2[i] = pFilt[i] + c*c*(ps2[i+1]-pPred[i+1])
	}

	mean := make([]float64, len(grid))
	std := make([]float64, len(grid))
	for i, ev := range events {
		if ev.grid < 0 {
			continue
		}
		mean[ev.grid] = xs2[i]
		std[ev.grid] = math.Sqrt(math.Max(ps2[i], 0))
	}
	return mean, std
}
