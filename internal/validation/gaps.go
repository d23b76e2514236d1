package validation

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"scadalab/pkg/contracts/domain"
)

// DefaultGapMultiplier scales the median interval into the gap threshold
const DefaultGapMultiplier = 5.0

// DetectGaps reports consecutive intervals longer than median × multiplier.
// Intervals touching a NaT are ignored. Fewer than two samples, or a
// non-positive median interval, yield an empty report.
func DetectGaps(ts []time.Time, multiplier float64) domain.GapReport {
	deltas := make([]float64, 0, len(ts))
	for i := 1; i < len(ts); i++ {
		if ts[i-1].IsZero() || ts[i].IsZero() {
			deltas = append(deltas, math.NaN())
			continue
		}
		deltas = append(deltas, ts[i].Sub(ts[i-1]).Seconds())
	}
	return gapsFromDeltas(deltas, multiplier)
}

// DetectGapsSeconds is DetectGaps over a seconds-since-origin axis
func DetectGapsSeconds(t []float64, multiplier float64) domain.GapReport {
	deltas := make([]float64, 0, len(t))
	for i := 1; i < len(t); i++ {
		deltas = append(deltas, t[i]-t[i-1])
	}
	return gapsFromDeltas(deltas, multiplier)
}

func gapsFromDeltas(deltas []float64, multiplier float64) domain.GapReport {
	empty := domain.GapReport{Gaps: []domain.Gap{}}
	if len(deltas) == 0 {
		return empty
	}
	if multiplier <= 0 {
		multiplier = DefaultGapMultiplier
	}

	finite := make(stats.Float64Data, 0, len(deltas))
	for _, d := range deltas {
		if !math.IsNaN(d) && !math.IsInf(d, 0) {
			finite = append(finite, d)
		}
	}
	if len(finite) == 0 {
		return empty
	}

	median, err := finite.Median()
	if err != nil || median <= 0 {
		return empty
	}

	report := domain.GapReport{
		Gaps:           []domain.Gap{},
		MedianInterval: median,
		Threshold:      median * multiplier,
	}
	for i, d := range deltas {
		if d > report.Threshold {
			report.Gaps = append(report.Gaps, domain.Gap{Index: i + 1, DeltaSeconds: d})
		}
	}
	report.Count = len(report.Gaps)
	return report
}
