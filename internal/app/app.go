package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/metrics"
	"github.com/Capitalisk/ldem/internal/registry"
	"github.com/Capitalisk/ldem/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	model    *config.Model

	promRegistry *prometheus.Registry
	metrics      *metrics.Collector

	supervisor *supervisor.Supervisor
	httpServer *http.Server
}

// NewApp is the constructor for the master. It loads and validates the
// application configuration and panics when it is unusable, since nothing
// can run without it.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, registrars ...registry.Registrar) *App {
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	model.ApplyDefaults()
	if err := config.ResolveInheritance(model); err != nil {
		panic(fmt.Errorf("failed to resolve module inheritance: %w", err))
	}
	if cfg.UpdatesDir != "" {
		model.UpdatesPath = cfg.UpdatesDir
	}
	logger.Debug("Configuration loaded.", "modules", model.Aliases(), "redirects", len(model.Redirects))

	reg := NewRegistry(registrars...)
	logger.Debug("Module types registered.", "types", reg.Types())

	// A module naming an unknown type is a mismatch between code and config.
	if err := reg.Validate(ctx, model); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		outW:         outW,
		logger:       logger,
		cfg:          cfg,
		registry:     reg,
		model:        model,
		promRegistry: promRegistry,
		metrics:      metrics.New(promRegistry),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded application configuration.
func (a *App) Model() *config.Model {
	return a.model
}
