// Package two provides the "two" module type. It listens to the testEvent
// channel of "one", both directly and through the "other" redirect, and
// calls one:doSomething when it loads.
package two

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
)

// Type is the registry type name of the module.
const Type = "two"

// Module implements the registry.Registrar interface for this package.
type Module struct{}

// Register registers the module type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule(Type, New)
}

// Two consumes events of "one".
type Two struct {
	module.Base
	received atomic.Int64
}

// New creates the module for alias.
func New(alias string) module.Module {
	return &Two{Base: module.Base{ModuleAlias: alias}}
}

func (m *Two) Dependencies() ([]string, bool) { return []string{"one", "other"}, true }

func (m *Two) Actions() map[string]module.Action {
	return map[string]module.Action{
		"doSomething": {Handler: func(context.Context, *module.Request) (any, error) {
			return 222, nil
		}},
		"greeting": {Handler: func(context.Context, *module.Request) (any, error) {
			return fmt.Sprintf("Hello, this is module %s", m.Alias()), nil
		}},
		"getReceivedEvents": {Handler: func(context.Context, *module.Request) (any, error) {
			return m.received.Load(), nil
		}},
	}
}

func (m *Two) Load(ctx context.Context, lc *module.LoadContext) error {
	logger := ctxlog.FromContext(ctx)

	handler := func(ctx context.Context, ev channel.Event) error {
		m.received.Add(1)
		ctxlog.FromContext(ctx).Debug("Received event from another module.", "channel", ev.Channel, "data", string(ev.Data))
		return nil
	}
	for _, name := range []string{"one:testEvent", "other:testEvent"} {
		if _, err := lc.Channel.Subscribe(ctx, name, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", name, err)
		}
	}

	result, err := channel.Decode[float64](lc.Channel.Invoke(ctx, "one:doSomething", map[string]any{"number": 1}))
	if err != nil {
		return fmt.Errorf("one:doSomething failed: %w", err)
	}
	logger.Info("Invoked one:doSomething.", "result", result)
	return nil
}
