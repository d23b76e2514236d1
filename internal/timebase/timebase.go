// Package timebase converts between absolute timestamps and the float
// seconds-since-origin axis used by every numeric algorithm.
package timebase

import (
	"math"
	"time"
)

// Origin returns the first valid (non-zero) timestamp
func Origin(ts []time.Time) (time.Time, bool) {
	for _, t := range ts {
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToSeconds maps timestamps to seconds elapsed since the first valid entry.
// NaT entries become NaN. Empty input gives empty output and all-NaT input
// gives an all-NaN slice of the same length.
func ToSeconds(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	origin, ok := Origin(ts)
	for i, t := range ts {
		if !ok || t.IsZero() {
			out[i] = math.NaN()
			continue
		}
		out[i] = t.Sub(origin).Seconds()
	}
	return out
}

// ToDatetime is the inverse of ToSeconds at whole-second resolution:
// offsets are rounded to the nearest second before being added to origin.
// NaN and infinite offsets map to NaT.
func ToDatetime(seconds []float64, origin time.Time) []time.Time {
	out := make([]time.Time, len(seconds))
	for i, s := range seconds {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		out[i] = origin.Add(time.Duration(math.Round(s)) * time.Second)
	}
	return out
}

// ToDatetimePrecise is ToDatetime at nanosecond resolution
func ToDatetimePrecise(seconds []float64, origin time.Time) []time.Time {
	out := make([]time.Time, len(seconds))
	for i, s := range seconds {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		out[i] = origin.Add(time.Duration(math.Round(s * float64(time.Second))))
	}
	return out
}

// UniformGrid returns n evenly spaced points from start to stop inclusive
func UniformGrid(start, stop float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// StepGrid returns start, start+dt, ... up to and including stop within a
// half-step tolerance
func StepGrid(start, stop, dt float64) []float64 {
	if dt <= 0 || stop < start {
		return []float64{}
	}
	n := int(math.Floor((stop-start)/dt+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*dt
	}
	return out
}
