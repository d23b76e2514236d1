package domain

import (
	"time"

	"scadalab/pkg/contracts"
)

// InterpolationInfo records which points of a value array were computed
// rather than measured, and by which method.
type InterpolationInfo struct {
	Mask   []bool   `json:"mask"`
	Method []string `json:"method"`
}

// NewInterpolationInfo returns an all-measured info of length n
func NewInterpolationInfo(n int) InterpolationInfo {
	return InterpolationInfo{
		Mask:   make([]bool, n),
		Method: make([]string, n),
	}
}

// Mark flags position i as produced by method
func (ii InterpolationInfo) Mark(i int, method string) {
	ii.Mask[i] = true
	ii.Method[i] = method
}

// Count returns the number of computed points
func (ii InterpolationInfo) Count() int {
	n := 0
	for _, m := range ii.Mask {
		if m {
			n++
		}
	}
	return n
}

// Clone deep-copies the info
func (ii InterpolationInfo) Clone() InterpolationInfo {
	out := InterpolationInfo{
		Mask:   make([]bool, len(ii.Mask)),
		Method: make([]string, len(ii.Method)),
	}
	copy(out.Mask, ii.Mask)
	copy(out.Method, ii.Method)
	return out
}

// ResultMetadata is the audit record attached to every computed artifact
type ResultMetadata struct {
	Operation       string    `json:"operation"`
	Parameters      Params    `json:"parameters"`
	PlatformVersion string    `json:"platform_version"`
	Timestamp       time.Time `json:"timestamp"`
	DurationMS      float64   `json:"duration_ms"`
	Seed            *int64    `json:"seed,omitempty"`
}

// NewResultMetadata stamps an operation that started at start
func NewResultMetadata(operation string, params Params, start time.Time) ResultMetadata {
	return ResultMetadata{
		Operation:       operation,
		Parameters:      params.Clone(),
		PlatformVersion: contracts.Version,
		Timestamp:       time.Now().UTC(),
		DurationMS:      float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

// WithSeed records the random seed of a stochastic method
func (m ResultMetadata) WithSeed(seed int64) ResultMetadata {
	m.Seed = &seed
	return m
}
