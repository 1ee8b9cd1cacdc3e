// Package one provides the "one" module type. It registers itself in the
// application state, publishes a testEvent at a fixed interval and walks its
// pending config updates: the first pending update is activated a while
// after the application is ready, and an active update is merged once the
// restarted module reaches the ready state again.
package one

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
	"github.com/Capitalisk/ldem/internal/update"
)

// Type is the registry type name of the module.
const Type = "one"

const (
	defaultPublishInterval = time.Second
	defaultUpdateDelay     = 4 * time.Second
)

// Module implements the registry.Registrar interface for this package.
type Module struct{}

// Register registers the module type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule(Type, New)
}

// One publishes events and serves doSomething.
type One struct {
	module.Base

	mu      sync.Mutex
	updater module.Updater
	autoUpd bool
	delay   time.Duration
	runCtx  context.Context
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates the module for alias.
func New(alias string) module.Module {
	return &One{Base: module.Base{ModuleAlias: alias}}
}

func (o *One) Dependencies() ([]string, bool) { return []string{"app"}, true }

func (o *One) Actions() map[string]module.Action {
	return map[string]module.Action{
		"doSomething": {Handler: doSomething, IsPublic: true},
		"greeting": {Handler: func(context.Context, *module.Request) (any, error) {
			return fmt.Sprintf("Hello, this is module %s", o.Alias()), nil
		}},
	}
}

// doSomething returns the number parameter plus one.
func doSomething(_ context.Context, req *module.Request) (any, error) {
	var p struct {
		Number float64 `json:"number"`
	}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return p.Number + 1, nil
}

func (o *One) Load(ctx context.Context, lc *module.LoadContext) error {
	logger := ctxlog.FromContext(ctx)

	interval, err := Duration(lc.Config, "publish_interval", defaultPublishInterval)
	if err != nil {
		return err
	}
	delay, err := Duration(lc.Config, "update_delay", defaultUpdateDelay)
	if err != nil {
		return err
	}
	autoUpd := true
	if v, ok := lc.Config["auto_update"].(bool); ok {
		autoUpd = v
	}

	entry := map[string]any{o.Alias(): map[string]any{"hello": 123}}
	if _, err := lc.Channel.Invoke(ctx, "app:updateModuleState", entry); err != nil {
		return fmt.Errorf("failed to register in the application state: %w", err)
	}
	state, err := channel.Decode[map[string]any](lc.Channel.Invoke(ctx, "app:getApplicationState", nil))
	if err != nil {
		return fmt.Errorf("failed to read the application state: %w", err)
	}
	logger.Info("Application state received.", "state", state)

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.updater = lc.Updater
	o.autoUpd = autoUpd
	o.delay = delay
	o.runCtx = runCtx
	o.cancel = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.publishLoop(runCtx, lc.Channel, interval)

	if active, ok := lc.Updater.ActiveUpdate(); ok {
		logger.Info("Running with an active update.", "update_id", active.ID)
	}
	logger.Info("Module loaded.", "pending_updates", len(lc.Updater.Updates()))
	return nil
}

func (o *One) publishLoop(ctx context.Context, ch *channel.Channel, interval time.Duration) {
	defer o.wg.Done()
	logger := ctxlog.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := fmt.Sprintf("This is module %s", o.Alias())
			if err := ch.Publish(o.Alias()+":testEvent", msg, nil); err != nil {
				logger.Warn("Failed to publish test event.", "error", err)
			}
		}
	}
}

// AppReady merges the update the module was restarted with and schedules
// the next pending one.
func (o *One) AppReady(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	o.mu.Lock()
	upd, autoUpd, delay := o.updater, o.autoUpd, o.delay
	o.mu.Unlock()
	if upd == nil || !autoUpd {
		return
	}

	if active, ok := upd.ActiveUpdate(); ok {
		logger.Info("Merging active update.", "update_id", active.ID)
		if err := upd.MergeActiveUpdate(ctx); err != nil {
			logger.Warn("Failed to merge active update.", "update_id", active.ID, "error", err)
			return
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	runCtx := o.runCtx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
		}
		o.applyNextUpdate(runCtx, upd)
	}()
}

func (o *One) applyNextUpdate(ctx context.Context, upd module.Updater) {
	logger := ctxlog.FromContext(ctx)

	pending, err := upd.Refresh(ctx)
	if err != nil {
		logger.Warn("Failed to refresh module updates.", "error", err)
		return
	}
	if _, ok := upd.ActiveUpdate(); ok {
		return
	}
	for _, u := range pending {
		if u.State == update.StateActive {
			continue
		}
		logger.Info("Preparing to apply module update.", "update_id", u.ID)
		if err := upd.ActivateUpdate(ctx, u); err != nil {
			logger.Warn("Failed to activate module update.", "update_id", u.ID, "error", err)
		}
		return
	}
}

func (o *One) Unload(context.Context) error {
	o.mu.Lock()
	o.closed = true
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	return nil
}

// Duration reads a duration setting. Strings use time.ParseDuration syntax
// and numbers are milliseconds.
func Duration(cfg map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, t, err)
		}
		return d, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case int:
		return time.Duration(t) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("invalid %s: unsupported type %T", key, v)
	}
}
