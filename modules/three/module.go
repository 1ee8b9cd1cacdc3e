// Package three provides the "three" module type. It reaches "one" through
// the "special" redirect.
package three

import (
	"context"
	"fmt"
	"sync"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
)

// Type is the registry type name of the module.
const Type = "three"

// Module implements the registry.Registrar interface for this package.
type Module struct{}

// Register registers the module type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule(Type, New)
}

// Three calls special:greeting on load.
type Three struct {
	module.Base

	mu       sync.Mutex
	greeting string
}

// New creates the module for alias.
func New(alias string) module.Module {
	return &Three{Base: module.Base{ModuleAlias: alias}}
}

func (m *Three) Dependencies() ([]string, bool) { return []string{"two", "special"}, true }

func (m *Three) Actions() map[string]module.Action {
	return map[string]module.Action{
		// lastGreeting returns what special:greeting answered on load.
		"lastGreeting": {Handler: func(context.Context, *module.Request) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.greeting, nil
		}},
	}
}

func (m *Three) Load(ctx context.Context, lc *module.LoadContext) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Module options.", "config", lc.Config)

	greeting, err := channel.Decode[string](lc.Channel.Invoke(ctx, "special:greeting", nil))
	if err != nil {
		return fmt.Errorf("special:greeting failed: %w", err)
	}
	m.mu.Lock()
	m.greeting = greeting
	m.mu.Unlock()
	logger.Info("Redirected module answered.", "result", greeting)
	return nil
}
