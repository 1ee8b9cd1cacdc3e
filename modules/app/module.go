// Package app provides the "app" module type. It holds the shared
// application state that other modules read and update through its actions
// and announces every change on its stateUpdated channel.
package app

import (
	"context"
	"maps"
	"sync"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
)

// Type is the registry type name of the module.
const Type = "app"

// EventStateUpdated is published after every state change.
const EventStateUpdated = "stateUpdated"

// Module implements the registry.Registrar interface for this package.
type Module struct{}

// Register registers the module type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule(Type, New)
}

// App is the state-holding module.
type App struct {
	module.Base

	mu      sync.Mutex
	state   map[string]any
	channel *channel.Channel
	app     *config.Model
}

// New creates the module for alias.
func New(alias string) module.Module {
	return &App{
		Base:  module.Base{ModuleAlias: alias},
		state: make(map[string]any),
	}
}

func (a *App) Dependencies() ([]string, bool) { return []string{}, true }

func (a *App) Actions() map[string]module.Action {
	return map[string]module.Action{
		"getComponentConfig":     {Handler: a.getComponentConfig},
		"getApplicationState":    {Handler: a.getApplicationState},
		"updateApplicationState": {Handler: a.updateApplicationState},
		"updateModuleState":      {Handler: a.updateModuleState},
	}
}

func (a *App) Load(ctx context.Context, lc *module.LoadContext) error {
	a.mu.Lock()
	a.channel = lc.Channel
	a.app = lc.AppConfig
	a.mu.Unlock()
	ctxlog.FromContext(ctx).Info("Application state module loaded.")
	return nil
}

// getComponentConfig returns the config of the module named by the
// "component" parameter, or an empty object.
func (a *App) getComponentConfig(_ context.Context, req *module.Request) (any, error) {
	var p struct {
		Component string `json:"component"`
	}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.app != nil {
		if d, ok := a.app.Module(p.Component); ok && d.Config != nil {
			return config.CloneMap(d.Config), nil
		}
	}
	return map[string]any{}, nil
}

func (a *App) getApplicationState(context.Context, *module.Request) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.state), nil
}

// updateApplicationState replaces the whole state.
func (a *App) updateApplicationState(ctx context.Context, req *module.Request) (any, error) {
	next := make(map[string]any)
	if err := req.Bind(&next); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.state = next
	a.mu.Unlock()
	return nil, a.publishState(ctx)
}

// updateModuleState merges the given per-module entries into the state.
func (a *App) updateModuleState(ctx context.Context, req *module.Request) (any, error) {
	entries := make(map[string]any)
	if err := req.Bind(&entries); err != nil {
		return nil, err
	}
	a.mu.Lock()
	maps.Copy(a.state, entries)
	a.mu.Unlock()
	return nil, a.publishState(ctx)
}

func (a *App) publishState(ctx context.Context) error {
	a.mu.Lock()
	ch := a.channel
	snapshot := maps.Clone(a.state)
	a.mu.Unlock()

	if ch == nil {
		return nil
	}
	ctxlog.FromContext(ctx).Debug("Publishing application state.", "modules", len(snapshot))
	return ch.Publish(a.Alias()+":"+EventStateUpdated, snapshot, nil)
}
