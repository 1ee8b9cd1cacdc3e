package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Capitalisk/ldem/internal/app"
	"github.com/Capitalisk/ldem/internal/cli"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/worker"
)

// main is the entrypoint for the ldem master and its worker processes.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	if len(args) > 0 && args[0] == cli.WorkerCommand {
		return runWorker(ctx, outW, args[1:])
	}

	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical config errors, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(outW, "A critical startup error occurred: %v\n", r)
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	loader, err := app.DetectLoader(appConfig.ConfigPaths)
	if err != nil {
		return err
	}
	ldemApp := app.NewApp(outW, appConfig, loader)

	return ldemApp.Run(ctx)
}

// runWorker hosts one module. It is started by the master, never by hand.
func runWorker(ctx context.Context, outW io.Writer, args []string) error {
	cfg, err := cli.ParseWorker(args, outW)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	conn, err := worker.ControlPlane()
	if err != nil {
		return err
	}
	return worker.Run(ctx, worker.Options{
		Alias:      cfg.Alias,
		Conn:       conn,
		Registry:   app.NewRegistry(),
		IPCTimeout: cfg.IPCTimeout,
		AckTimeout: cfg.AckTimeout,
	})
}
