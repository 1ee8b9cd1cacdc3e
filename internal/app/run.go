package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/supervisor"
	"github.com/Capitalisk/ldem/internal/update"
	"github.com/Capitalisk/ldem/internal/worker"
)

// shutdownTimeout bounds how long workers get to unload before they are
// killed.
const shutdownTimeout = 10 * time.Second

// Run starts every module and supervises them until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	var store update.Store = update.NopStore{}
	if a.model.UpdatesPath != "" {
		store = update.NewFileStore(a.model.UpdatesPath)
	}

	sup := supervisor.New(ctx, supervisor.Options{
		App:     a.model,
		Spawner: a.spawner(),
		Store:   store,
		Metrics: a.metrics,
	})
	a.supervisor = sup

	if a.cfg.StatusPort > 0 {
		if err := a.startStatusServer(ctx); err != nil {
			return err
		}
		defer a.closeStatusServer(ctx)
	} else {
		a.logger.Debug("Status server disabled.")
	}

	var watcher *update.Watcher
	if a.model.UpdatesPath != "" {
		watcher = update.NewWatcher(a.model.UpdatesPath)
		pending, err := watcher.Scan(ctx)
		if err != nil {
			return err
		}
		for _, u := range pending {
			a.enqueue(ctx, sup, u)
		}
	}

	a.logger.Info("Starting modules...", "modules", a.model.Aliases())
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	a.logger.Info("All modules are ready.", "order", sup.Order())

	if watcher != nil {
		go func() {
			err := watcher.Watch(ctx, func(u update.Update) {
				a.enqueue(ctx, sup, u)
			})
			if err != nil {
				a.logger.Error("Update watcher stopped.", "error", err)
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("Shutting down modules...")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	sup.Stop(stopCtx)

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) enqueue(ctx context.Context, sup *supervisor.Supervisor, u update.Update) {
	if err := sup.EnqueueUpdate(ctx, u); err != nil {
		a.logger.Warn("Ignoring update patch.", "module", u.Module, "update_id", u.ID, "error", err)
	}
}

func (a *App) spawner() supervisor.Spawner {
	if a.cfg.InProcess {
		a.logger.Info("Hosting modules in process.")
		return &worker.InProcessSpawner{Registry: a.registry}
	}
	return &supervisor.ExecSpawner{
		Executable: a.cfg.WorkerExecutable,
		LogLevel:   a.cfg.LogLevel,
		LogFormat:  a.cfg.LogFormat,
		Stdout:     a.outW,
		Stderr:     os.Stderr,
	}
}
