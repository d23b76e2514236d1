// Package smoothing holds stateless value filters. They do not track
// provenance; smoothing is an analysis transform, not a data repair.
package smoothing

import (
	"strings"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// Method identifies a filter
type Method int

const (
	MethodSavGol Method = iota
	MethodGaussian
	MethodMedian
	MethodButterworth
)

var methodNames = []string{
	MethodSavGol:      "savgol",
	MethodGaussian:    "gaussian",
	MethodMedian:      "median",
	MethodButterworth: "butterworth",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "unknown"
	}
	return methodNames[m]
}

// SupportedMethods lists every filter name
func SupportedMethods() []string {
	out := make([]string, len(methodNames))
	copy(out, methodNames)
	return out
}

// ParseMethod resolves a filter name or returns a CONFIG error
func ParseMethod(name string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range methodNames {
		if n == key {
			return Method(i), nil
		}
	}
	return 0, apperrors.UnsupportedMethod("smoothing", name, SupportedMethods())
}

// Smooth filters values with the named method. The input is never
// modified and identical calls give identical output.
func Smooth(values []float64, method string, params domain.Params) ([]float64, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return []float64{}, nil
	}

	switch m {
	case MethodSavGol:
		return savgol(values,
			params.Int("window_length", 11),
			params.Int("polyorder", 3))
	case MethodGaussian:
		return gaussian(values,
			params.Float("sigma", 1.0),
			params.Float("truncate", 4.0))
	case MethodMedian:
		return median(values, params.Int("kernel_size", 3))
	case MethodButterworth:
		wn, err := normalizedCutoff(params)
		if err != nil {
			return nil, err
		}
		return butterworth(values, wn, params.Int("order", 4))
	}
	return nil, apperrors.UnsupportedMethod("smoothing", method, SupportedMethods())
}

// reflectIndex maps i onto [0, n) mirroring about the edges with the edge
// sample repeated (d c b a | a b c d | d c b a)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}
