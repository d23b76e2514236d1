// Package interpolation fills missing samples and resamples irregular
// series. Every method is selected through the closed Method enum and
// reports exactly which points it computed.
package interpolation

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	apperrors "scadalab/internal/errors"
)

// Method identifies an interpolation algorithm
type Method int

const (
	MethodLinear Method = iota
	MethodSplineCubic
	MethodSmoothingSpline
	MethodResampleGrid
	MethodMLS
	MethodGPR
	MethodLombScargle
)

var methodNames = []string{
	MethodLinear:          "linear",
	MethodSplineCubic:     "spline_cubic",
	MethodSmoothingSpline: "smoothing_spline",
	MethodResampleGrid:    "resample_grid",
	MethodMLS:             "mls",
	MethodGPR:             "gpr",
	MethodLombScargle:     "lomb_scargle_spectral",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "unknown"
	}
	return methodNames[m]
}

// SupportedMethods lists every method name in declaration order
func SupportedMethods() []string {
	out := make([]string, len(methodNames))
	copy(out, methodNames)
	return out
}

// ParseMethod resolves a method name. Unknown names yield a CONFIG error
// carrying the requested name and the supported set.
func ParseMethod(name string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range methodNames {
		if n == key {
			return Method(i), nil
		}
	}
	return 0, apperrors.UnsupportedMethod("interpolation", name, SupportedMethods())
}

// Capability names used in errors and in the disabled list
const (
	CapSpectral        = "spectral"
	CapGaussianProcess = "gaussian_process"
	CapLocalRegression = "local_regression"
	CapAccelerated     = "accelerated"
)

// Capabilities records which optional numeric backends are usable. It is
// resolved once at startup and read-only afterwards.
type Capabilities struct {
	Spectral        bool `json:"spectral"`
	GaussianProcess bool `json:"gaussian_process"`
	LocalRegression bool `json:"local_regression"`
	Accelerated     bool `json:"accelerated"`
}

// AllCapabilities enables every backend
func AllCapabilities() Capabilities {
	return Capabilities{Spectral: true, GaussianProcess: true, LocalRegression: true, Accelerated: true}
}

// ResolveCapabilities self-tests the linear-algebra backend and applies the
// disabled list. Entries may be capability names or method names.
func ResolveCapabilities(disabled []string) Capabilities {
	caps := AllCapabilities()
	if !linalgSelfTest() {
		caps.Spectral = false
		caps.GaussianProcess = false
		caps.LocalRegression = false
	}

	for _, d := range disabled {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case CapSpectral, MethodLombScargle.String():
			caps.Spectral = false
		case CapGaussianProcess, MethodGPR.String():
			caps.GaussianProcess = false
		case CapLocalRegression, MethodMLS.String():
			caps.LocalRegression = false
		case CapAccelerated:
			caps.Accelerated = false
		}
	}
	return caps
}

// Requirement returns the capability a method depends on, if any
func (m Method) Requirement() (string, bool) {
	switch m {
	case MethodLombScargle:
		return CapSpectral, true
	case MethodGPR:
		return CapGaussianProcess, true
	case MethodMLS:
		return CapLocalRegression, true
	default:
		return "", false
	}
}

// Has reports whether the named capability is present
func (c Capabilities) Has(capability string) bool {
	switch capability {
	case CapSpectral:
		return c.Spectral
	case CapGaussianProcess:
		return c.GaussianProcess
	case CapLocalRegression:
		return c.LocalRegression
	case CapAccelerated:
		return c.Accelerated
	default:
		return false
	}
}

// Available reports whether a method can run under these capabilities
func (c Capabilities) Available(m Method) bool {
	capability, needs := m.Requirement()
	return !needs || c.Has(capability)
}

// AvailableMethods lists the method names that can run
func (c Capabilities) AvailableMethods() []string {
	out := make([]string, 0, len(methodNames))
	for i, name := range methodNames {
		if c.Available(Method(i)) {
			out = append(out, name)
		}
	}
	return out
}

// linalgSelfTest solves a small SPD system through Cholesky and checks the answer
func linalgSelfTest() bool {
	a := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return false
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(2, []float64{1, 2})); err != nil {
		return false
	}
	// exact solution is (1/11, 7/11)
	return abs(x.AtVec(0)-1.0/11) < 1e-12 && abs(x.AtVec(1)-7.0/11) < 1e-12
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
