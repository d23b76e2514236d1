package synchronization

import (
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// maxDTWCells caps the banded cost matrix (grid length × band width)
const maxDTWCells = 50_000_000

// dtw places every series on the grid, then warps each one onto the
// reference series with a Sakoe-Chiba band. The warped value at reference
// index i is the mean of the series values matched to i.
func (e *Engine) dtw(res *Result, keys []string, series, times map[string][]float64, params domain.Params) error {
	if err := e.commonGrid(res, keys, series, times, params); err != nil {
		return err
	}

	ref := params.String("reference", keys[0])
	refVals, ok := res.Synced[ref]
	if !ok {
		return apperrors.InvalidParameter("synchronization", "reference", ref, "not one of the input series").
			WithContext("series_keys", keys)
	}

	n := len(res.TCommon)
	window := params.Int("window", int(math.Ceil(0.1*float64(n))))
	if window < 0 {
		return apperrors.InvalidParameter("synchronization", "window", window, "must be non-negative")
	}
	if window >= n {
		window = n - 1
	}
	if cells := n * (2*window + 1); cells > maxDTWCells {
		return apperrors.InvalidParameter("synchronization", "window", window, "cost band too large").
			WithContext("grid_points", n)
	}

	refNorm := zscore(refVals)
	distances := make(map[string]float64, len(keys))
	for _, k := range keys {
		if k == ref {
			distances[k] = 0
			continue
		}
		path, dist := warpPath(refNorm, zscore(res.Synced[k]), window)
		res.Synced[k] = applyPath(res.Synced[k], path, n)
		distances[k] = dist

		info := res.Info[k]
		for i := 0; i < n; i++ {
			if !info.Mask[i] {
				info.Mark(i, MethodDTW.String())
			}
		}
	}
	params["reference"] = ref
	params["fitted_window"] = window
	params["fitted_dtw_distance"] = distances
	return nil
}

func zscore(v []float64) []float64 {
	mean, std := stat.MeanStdDev(v, nil)
	out := make([]float64, len(v))
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	for i, x := range v {
		out[i] = (x - mean) / std
	}
	return out
}

// warpPath returns the optimal alignment pairs (i in a, j in b) under the
// band |i-j| <= w and the accumulated absolute-difference cost
func warpPath(a, b []float64, w int) ([][2]int, float64) {
	n := len(a)
	width := 2*w + 1
	inf := math.Inf(1)
	cost := make([]float64, n*width)
	for i := range cost {
		cost[i] = inf
	}
	// band cell (i, j) lives at i*width + (j - i + w)
	at := func(i, j int) float64 {
		if i < 0 || j < 0 || j < i-w || j > i+w || j >= n {
			return inf
		}
		return cost[i*width+j-i+w]
	}

	for i := 0; i < n; i++ {
		for j := max(0, i-w); j <= min(n-1, i+w); j++ {
			d := math.Abs(a[i] - b[j])
			if i == 0 && j == 0 {
				cost[w] = d
				continue
			}
			best := math.Min(at(i-1, j-1), math.Min(at(i-1, j), at(i, j-1)))
			cost[i*width+j-i+w] = d + best
		}
	}

	path := make([][2]int, 0, 2*n)
	i, j := n-1, n-1
	path = append(path, [2]int{i, j})
	for i > 0 || j > 0 {
		diag, up, left := at(i-1, j-1), at(i-1, j), at(i, j-1)
		switch {
		case diag <= up && diag <= left:
			i, j = i-1, j-1
		case up <= left:
			i--
		default:
			j--
		}
		path = append(path, [2]int{i, j})
	}
	return path, at(n-1, n-1)
}

func applyPath(b []float64, path [][2]int, n int) []float64 {
	sum := make([]float64, n)
	count := make([]int, n)
	for _, p := range path {
		sum[p[0]] += b[p[1]]
		count[p[0]]++
	}
	out := make([]float64, n)
	for i := range out {
		if count[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum[i] / float64(count[i])
	}
	return out
}
