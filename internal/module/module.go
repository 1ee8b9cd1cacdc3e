// Package module defines the contract between the worker runtime and the
// business logic of a module.
package module

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/update"
)

// Module is implemented by every module.
type Module interface {
	Alias() string
	// Dependencies returns the aliases the module depends on. declared is
	// false when the module leaves its dependencies unspecified, which makes
	// it depend on every other enabled module.
	Dependencies() (deps []string, declared bool)
	Actions() map[string]Action
	// Load is called once, after the handshake with the master completed.
	Load(ctx context.Context, lc *LoadContext) error
	Unload(ctx context.Context) error
}

// AppReadyListener is implemented by modules that want to know when every
// module of the application is ready.
type AppReadyListener interface {
	AppReady(ctx context.Context)
}

// Request is an incoming action call.
type Request struct {
	Action   string
	Source   string
	IsPublic bool
	Params   json.RawMessage
	Info     json.RawMessage
}

// Bind decodes the call parameters into v.
func (r *Request) Bind(v any) error {
	if len(r.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return fmt.Errorf("invalid params for %s: %w", r.Action, err)
	}
	return nil
}

// HandlerFunc serves an action.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Action is a callable entry point of a module. Private actions are only
// reachable by dependents through Invoke; public ones also through
// InvokePublic.
type Action struct {
	Handler  HandlerFunc
	IsPublic bool
}

// Updater lets a module drive the update lifecycle of its own config.
type Updater interface {
	// Updates returns the pending updates known to the worker.
	Updates() []update.Update
	// ActiveUpdate returns the update the module currently runs with.
	ActiveUpdate() (update.Update, bool)
	// Refresh asks the master for the current update list.
	Refresh(ctx context.Context) ([]update.Update, error)
	// ActivateUpdate asks the master to apply u. The module is restarted
	// with the patched config.
	ActivateUpdate(ctx context.Context, u update.Update) error
	// MergeActiveUpdate commits the active update.
	MergeActiveUpdate(ctx context.Context) error
	// RevertActiveUpdate rolls the active update back. The module is
	// restarted with its previous config.
	RevertActiveUpdate(ctx context.Context) error
}

// LoadContext carries everything a module needs to run.
type LoadContext struct {
	Channel   *channel.Channel
	Config    map[string]any
	AppConfig *config.Model
	Updater   Updater
	// Dependents are the aliases of the modules depending on this one.
	Dependents []string
}

// Base implements the alias plumbing shared by most modules.
type Base struct {
	ModuleAlias string
}

// Alias implements Module.
func (b *Base) Alias() string { return b.ModuleAlias }

// Unload implements Module.
func (b *Base) Unload(context.Context) error { return nil }
