// Package units converts value arrays between physical units. Unit
// definitions come from go-units; the SCADA alias table maps the spellings
// found in historian exports onto library names.
package units

import (
	"fmt"
	"strings"
	"sync"

	gounits "github.com/bcicen/go-units"

	apperrors "scadalab/internal/errors"
)

// scadaAliases maps lower-cased export spellings to go-units names
var scadaAliases = map[string]string{
	"degc":  "celsius",
	"deg c": "celsius",
	"°c":    "celsius",
	"℃":     "celsius",
	"degf":  "fahrenheit",
	"deg f": "fahrenheit",
	"°f":    "fahrenheit",
	"℉":     "fahrenheit",
	"degk":  "kelvin",
	"k":     "kelvin",
	"pa":    "pascal",
	"kpa":   "kilopascal",
	"mpa":   "megapascal",
	"mbar":  "millibar",
	"hpa":   "hectopascal",
	"mh2o":  "meter of Water Column",
	"cmh2o": "centimeter of Water Column",
	"mmh2o": "millimeter of Water Column",
	"m":     "meter",
	"mm":    "millimeter",
	"km":    "kilometer",
	"l":     "liter",
	"kg":    "kilogram",
	"s":     "second",
	"sec":   "second",
	"min":   "minute",
	"h":     "hour",
	"hr":    "hour",
}

// pascalPerUnit overrides go-units pressure ratios that disagree with the
// SI definitions (the library defines 1 bar as 98000 Pa and 1 mH2O as
// 980.665 Pa). Keys are library unit names.
var pascalPerUnit = map[string]float64{
	"bar":                        1e5,
	"centibar":                   1e3,
	"millibar":                   1e2,
	"microbar":                   1e-1,
	"standard atmosphere":        101325,
	"meter of Water Column":      9806.65,
	"centimeter of Water Column": 98.0665,
	"millimeter of Water Column": 9.80665,
}

// Registry resolves unit names. It is read-only after construction and
// safe for concurrent use.
type Registry struct {
	aliases map[string]string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built on first use
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(nil)
	})
	return defaultRegistry
}

// NewRegistry builds a registry with the SCADA aliases plus extra
func NewRegistry(extra map[string]string) *Registry {
	aliases := make(map[string]string, len(scadaAliases)+len(extra))
	for k, v := range scadaAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Registry{aliases: aliases}
}

// Resolve finds the library unit for name, trying the alias table first
func (r *Registry) Resolve(name string) (gounits.Unit, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return gounits.Unit{}, unknownUnit(name, nil)
	}
	if alias, ok := r.aliases[strings.ToLower(key)]; ok {
		if u, err := gounits.Find(alias); err == nil {
			return u, nil
		}
	}
	u, err := gounits.Find(key)
	if err != nil {
		return gounits.Unit{}, unknownUnit(name, err)
	}
	return u, nil
}

// Known reports whether name resolves to a unit
func (r *Registry) Known(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Convert returns values expressed in to. NaN stays NaN. Incompatible
// dimensions fail with the library's error wrapped.
func (r *Registry) Convert(values []float64, from, to string) ([]float64, error) {
	fu, err := r.Resolve(from)
	if err != nil {
		return nil, err
	}
	tu, err := r.Resolve(to)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	if fu.Name == tu.Name {
		copy(out, values)
		return out, nil
	}

	if factor, ok, err := correctedFactor(fu, tu); err != nil {
		return nil, err
	} else if ok {
		for i, v := range values {
			out[i] = v * factor
		}
		return out, nil
	}

	// resolve the conversion path once before touching the data
	if _, err := gounits.NewValue(0, fu).Convert(tu); err != nil {
		return nil, incompatible(fu, tu, err)
	}

	for i, v := range values {
		if v != v {
			out[i] = v
			continue
		}
		cv, err := gounits.NewValue(v, fu).Convert(tu)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrTypeConfig, "unit conversion failed", err).
				WithCode("incompatible_units").
				WithContext("index", i)
		}
		out[i] = cv.Float()
	}
	return out, nil
}

// correctedFactor returns the multiplier from fu to tu when either unit has
// an entry in pascalPerUnit. Both units must be pressures.
func correctedFactor(fu, tu gounits.Unit) (float64, bool, error) {
	_, fromFixed := pascalPerUnit[fu.Name]
	_, toFixed := pascalPerUnit[tu.Name]
	if !fromFixed && !toFixed {
		return 0, false, nil
	}
	if fu.Quantity != tu.Quantity {
		return 0, false, incompatible(fu, tu, fmt.Errorf("%s is a %s, %s is a %s", fu.Name, fu.Quantity, tu.Name, tu.Quantity))
	}
	from, err := pascals(fu)
	if err != nil {
		return 0, false, incompatible(fu, tu, err)
	}
	to, err := pascals(tu)
	if err != nil {
		return 0, false, incompatible(fu, tu, err)
	}
	return from / to, true, nil
}

// pascals is the size of one u in pascal
func pascals(u gounits.Unit) (float64, error) {
	if pa, ok := pascalPerUnit[u.Name]; ok {
		return pa, nil
	}
	if u.Name == gounits.Pascal.Name {
		return 1, nil
	}
	v, err := gounits.ConvertFloat(1, u, gounits.Pascal)
	if err != nil {
		return 0, err
	}
	return v.Float(), nil
}

// Symbol returns the canonical symbol for name, or name itself when unknown
func (r *Registry) Symbol(name string) string {
	u, err := r.Resolve(name)
	if err != nil || u.Symbol == "" {
		return name
	}
	return u.Symbol
}

// NormalizeUnits converts with the default registry
func NormalizeUnits(values []float64, from, to string) ([]float64, error) {
	return Default().Convert(values, from, to)
}

func incompatible(fu, tu gounits.Unit, cause error) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrTypeConfig,
		fmt.Sprintf("cannot convert %s to %s", fu.Name, tu.Name),
		fmt.Errorf("%w: %w", apperrors.ErrIncompatibleUnits, cause)).
		WithCode("incompatible_units").
		WithContext("from", fu.Name).
		WithContext("to", tu.Name).
		WithContext("from_quantity", fu.Quantity).
		WithContext("to_quantity", tu.Quantity)
}

func unknownUnit(name string, cause error) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrTypeConfig, fmt.Sprintf("unknown unit %q", name), cause).
		WithCode("unknown_unit").
		WithContext("unit", name)
}
