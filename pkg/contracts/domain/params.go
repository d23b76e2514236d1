package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Params is the flat option mapping every processing call receives.
// Unrecognised keys are ignored; missing keys fall back to per-method defaults.
type Params map[string]any

// Has reports whether key is present
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Float returns key as float64, or def when absent or not convertible
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns key as int, or def when absent or not convertible
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float64:
		return int(x)
	case float32:
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return def
}

// String returns key as string, or def when absent
func (p Params) String(key string, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Bool returns key as bool, or def when absent or not convertible
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	return def
}

// Duration returns key as a time.Duration. Strings use Go duration syntax,
// numbers are taken as seconds.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	if s, isStr := v.(string); isStr {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d
		}
		return def
	}
	secs := p.Float(key, -1)
	if secs < 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// Clone returns a shallow copy safe to store in result metadata
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParseParams turns "key=value" pairs into Params. Values are typed as int,
// then float64, then bool, and otherwise kept as strings.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		value = strings.TrimSpace(value)
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p[key] = int(n)
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			p[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			p[key] = b
		} else {
			p[key] = value
		}
	}
	return p, nil
}
