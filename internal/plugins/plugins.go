// Package plugins is the extension point for third-party interpolation and
// synchronization methods. No plugin ships with the platform; the registry
// only stores what callers register and dispatches by name.
package plugins

import (
	"fmt"
	"sync"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// Plugin identifies an extension
type Plugin interface {
	Name() string
	Version() string
}

// Interpolator is implemented by plugins that fill gaps in one series
type Interpolator interface {
	Plugin
	Interpolate(values, t []float64, params domain.Params) ([]float64, domain.InterpolationInfo, error)
}

// Synchronizer is implemented by plugins that align several series
type Synchronizer interface {
	Plugin
	Synchronize(series, times map[string][]float64, params domain.Params) (grid []float64, synced map[string][]float64, err error)
}

// Capabilities lists what a plugin implements
type Capabilities struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Interpolate bool   `json:"interpolate"`
	Synchronize bool   `json:"synchronize"`
}

// CapabilitiesOf inspects p
func CapabilitiesOf(p Plugin) Capabilities {
	_, interp := p.(Interpolator)
	_, syncer := p.(Synchronizer)
	return Capabilities{Name: p.Name(), Version: p.Version(), Interpolate: interp, Synchronize: syncer}
}

// NotImplemented is the PLUGIN error for an operation a plugin lacks
func NotImplemented(plugin, operation string) *apperrors.AppError {
	return apperrors.NewPluginError(fmt.Sprintf("plugin %q does not implement %s", plugin, operation),
		apperrors.ErrNotImplemented).
		WithCode("not_implemented").
		WithContext("plugin", plugin).
		WithContext("operation", operation)
}

// Registry holds plugins by name in registration order
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds p. Names are unique.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return apperrors.NewPluginError("cannot register nil plugin", nil)
	}
	name := p.Name()
	if name == "" {
		return apperrors.NewPluginError("plugin name cannot be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		return apperrors.NewPluginError("plugin already registered", nil).
			WithCode("duplicate_plugin").
			WithContext("plugin", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a plugin
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		return apperrors.NewNotFoundError("plugin", name)
	}
	delete(r.plugins, name)

	order := make([]string, 0, len(r.order))
	for _, n := range r.order {
		if n != name {
			order = append(order, n)
		}
	}
	r.order = order
	return nil
}

// Get retrieves a plugin by name
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[name]
	if !exists {
		return nil, apperrors.NewNotFoundError("plugin", name)
	}
	return p, nil
}

// List returns the capabilities of every plugin in registration order
func (r *Registry) List() []Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capabilities, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, CapabilitiesOf(r.plugins[name]))
	}
	return out
}

// Count returns the number of registered plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Interpolate runs the named plugin's interpolation
func (r *Registry) Interpolate(name string, values, t []float64, params domain.Params) ([]float64, domain.InterpolationInfo, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, domain.InterpolationInfo{}, err
	}
	ip, ok := p.(Interpolator)
	if !ok {
		return nil, domain.InterpolationInfo{}, NotImplemented(name, "interpolate")
	}
	return ip.Interpolate(values, t, params.Clone())
}

// Synchronize runs the named plugin's synchronization
func (r *Registry) Synchronize(name string, series, times map[string][]float64, params domain.Params) ([]float64, map[string][]float64, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, nil, err
	}
	sp, ok := p.(Synchronizer)
	if !ok {
		return nil, nil, NotImplemented(name, "synchronize")
	}
	return sp.Synchronize(series, times, params.Clone())
}
