package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Capitalisk/ldem/internal/channel"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
	"github.com/Capitalisk/ldem/internal/transport"
)

// unloadTimeout bounds the module's Unload and the transport shutdown.
const unloadTimeout = 5 * time.Second

// Options configures a worker.
type Options struct {
	Alias string
	// Conn is the control-plane connection to the master.
	Conn     *ipc.Conn
	Registry *registry.Registry
	// IPCTimeout and AckTimeout override the application settings when set.
	IPCTimeout time.Duration
	AckTimeout time.Duration
}

// Run hosts one module until ctx ends or the master closes the control
// plane. A closed control plane is a normal shutdown.
func Run(ctx context.Context, opts Options) error {
	logger := ctxlog.FromContext(ctx).With("alias", opts.Alias, "pid", os.Getpid())
	ctx = ctxlog.WithLogger(ctx, logger)
	started := time.Now()

	conn := opts.Conn
	conn.Start()

	msg, err := conn.Await(ctx, ipc.EventMasterInit, opts.IPCTimeout)
	if err != nil {
		return fmt.Errorf("failed to receive masterInit: %w", err)
	}
	var mi ipc.MasterInit
	if err := msg.Decode(&mi); err != nil {
		return err
	}
	app := mi.AppConfig
	if app == nil {
		return errors.New("masterInit carries no application config")
	}
	app.ApplyDefaults()
	if opts.IPCTimeout > 0 {
		app.IPCTimeout = opts.IPCTimeout
	}
	if opts.AckTimeout > 0 {
		app.AckTimeout = opts.AckTimeout
	}
	desc, ok := app.Modules[opts.Alias]
	if !ok {
		return fmt.Errorf("module %s is not part of the application config", opts.Alias)
	}

	mod, err := opts.Registry.New(desc.Type, opts.Alias)
	if err != nil {
		return err
	}
	logger.Debug("Module created.", "type", desc.Type)

	book := transport.NewAddressBook(app.TransportHost, app.TransportBasePort, app.Aliases())
	addr, err := book.Addr(opts.Alias)
	if err != nil {
		return err
	}

	dispatcher := transport.NewDispatcher(procedures(mod.Actions()), workerActions(opts.Alias, started))
	server := transport.NewServer(ctx, transport.ServerOptions{
		Alias:       opts.Alias,
		Addr:        addr,
		BindTimeout: app.IPCTimeout,
		Dispatcher:  dispatcher,
	})
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unloadTimeout)
		defer cancel()
		if err := server.Close(shutdownCtx); err != nil {
			logger.Debug("Transport server shutdown failed.", "error", err)
		}
	}()

	deps, declared := mod.Dependencies()
	if err := conn.Send(ipc.EventWorkerHandshake, ipc.WorkerHandshake{
		Dependencies: deps,
		Declared:     declared,
		Actions:      dispatcher.Names(),
	}); err != nil {
		return err
	}

	// The master answers once every module completed its own worker
	// handshake and the modules before this one are ready, so the wait is
	// bounded by the master rather than by a timeout.
	msg, err = conn.Await(ctx, ipc.EventMasterHandshake, 0)
	if err != nil {
		return shutdownError(ctx, fmt.Errorf("failed to receive masterHandshake: %w", err))
	}
	var hs ipc.MasterHandshake
	if err := msg.Decode(&hs); err != nil {
		return err
	}
	logger.Debug("Master handshake received.", "dependencies", hs.TargetDependencies, "dependents", hs.Dependents)

	ch, err := channel.New(ctx, channel.Options{
		Alias:                       opts.Alias,
		Dependencies:                hs.TargetDependencies,
		Redirects:                   app.Redirects,
		DefaultTargetAlias:          app.DefaultTargetAlias,
		AllowPublishingWithoutAlias: app.AllowPublishingWithoutAlias,
		SubscribeTimeout:            app.SubscribeTimeout,
		AckTimeout:                  app.AckTimeout,
		Dialer: channel.DialerFunc(func(ctx context.Context, target string) (channel.Conn, error) {
			url, err := book.URL(target)
			if err != nil {
				return nil, err
			}
			return transport.Dial(ctx, transport.ClientOptions{
				Source:         opts.Alias,
				Target:         target,
				URL:            url,
				ConnectTimeout: app.ConnectTimeout,
				Dispatcher:     dispatcher,
			})
		}),
		Exchange: server,
		Inbound: channel.InboundLookupFunc(func(alias string) (channel.Invoker, bool) {
			peer, ok := server.Inbound(alias)
			if !ok {
				return nil, false
			}
			return peer, true
		}),
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	upd := newUpdater(conn, app.IPCTimeout, logger, mi.Updates, mi.ActiveUpdate)

	if err := mod.Load(ctx, &module.LoadContext{
		Channel:    ch,
		Config:     mi.ModuleConfig,
		AppConfig:  app,
		Updater:    upd,
		Dependents: hs.Dependents,
	}); err != nil {
		return fmt.Errorf("failed to load module %s: %w", opts.Alias, err)
	}
	defer func() {
		unloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unloadTimeout)
		defer cancel()
		if err := mod.Unload(unloadCtx); err != nil {
			logger.Warn("Module unload failed.", "error", err)
		}
		logger.Info("Module unloaded.")
	}()

	conn.Handle(ipc.EventAppReady, func(ipc.Message) {
		logger.Debug("Application is ready.")
		if l, ok := mod.(module.AppReadyListener); ok {
			go l.AppReady(ctx)
		}
	})
	if err := conn.Send(ipc.EventModuleReady, nil); err != nil {
		return err
	}
	logger.Info("Module loaded.", "addr", addr)

	select {
	case <-ctx.Done():
		return nil
	case <-conn.Done():
		return conn.Err()
	}
}

// shutdownError drops the error of a handshake that was cut short by a
// shutdown.
func shutdownError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, ipc.ErrClosed) {
		return nil
	}
	return err
}

// procedures exposes module actions on the transport.
func procedures(actions map[string]module.Action) map[string]transport.Procedure {
	out := make(map[string]transport.Procedure, len(actions))
	for name, a := range actions {
		handler := a.Handler
		out[name] = transport.Procedure{
			IsPublic: a.IsPublic,
			Handler: func(ctx context.Context, req *transport.Request) (any, error) {
				return handler(ctx, &module.Request{
					Action:   req.Action,
					Source:   req.Source,
					IsPublic: req.IsPublic,
					Params:   req.Params,
					Info:     req.Info,
				})
			},
		}
	}
	return out
}
