package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/supervisor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusShutdownTimeout = 5 * time.Second

// StatusReport is the body served on /status.
type StatusReport struct {
	Healthy bool                      `json:"healthy"`
	Order   []string                  `json:"order"`
	Modules []supervisor.ModuleStatus `json:"modules"`
}

func (a *App) statusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", a.healthHandler)
	r.Get("/status", a.statusHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{}))
	return r
}

// healthHandler answers 200 once every module is ready and 503 otherwise.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	if a.supervisor == nil || !a.supervisor.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "UNAVAILABLE")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	report := StatusReport{Order: []string{}, Modules: []supervisor.ModuleStatus{}}
	if a.supervisor != nil {
		report.Healthy = a.supervisor.Healthy()
		report.Order = a.supervisor.Order()
		report.Modules = a.supervisor.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		a.logger.Debug("Failed to write status report.", "error", err)
	}
}

// startStatusServer binds the status port and serves in the background.
func (a *App) startStatusServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	addr := fmt.Sprintf(":%d", a.cfg.StatusPort)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind status server on %s: %w", addr, err)
	}
	a.httpServer = &http.Server{
		Handler:           a.statusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Status server starting.", "address", fmt.Sprintf("http://localhost%s/status", addr))
		// Serve returns http.ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly.", "error", err)
		}
	}()
	return nil
}

func (a *App) closeStatusServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		logger.Debug("Status server was not running.")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down status server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed.", "error", err)
		return err
	}
	logger.Debug("Status server shut down gracefully.")
	return nil
}
