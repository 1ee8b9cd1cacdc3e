package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Capitalisk/ldem/internal/module"
)

// Registrar is implemented by every module package to register its types.
type Registrar interface {
	Register(r *Registry)
}

// Factory builds a module instance for an alias.
type Factory func(alias string) module.Module

// Registry holds the module factories compiled into the binary.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty Registry.
func New(registrars ...Registrar) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}

// RegisterModule registers the factory of a module type.
func (r *Registry) RegisterModule(typ string, f Factory) {
	if _, exists := r.factories[typ]; exists {
		panic(fmt.Sprintf("module type '%s' already registered", typ))
	}
	slog.Debug("Registering module type.", "type", typ)
	r.factories[typ] = f
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	_, ok := r.factories[typ]
	return ok
}

// New builds a module of type typ for alias.
func (r *Registry) New(typ, alias string) (module.Module, error) {
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("unknown module type '%s'", typ)
	}
	return f(alias), nil
}
