// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/lib/bussocket"
	"github.com/bureau-foundation/fleetstate/lib/config"
	"github.com/bureau-foundation/fleetstate/lib/liveness"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/process"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
	"github.com/bureau-foundation/fleetstate/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to fleetstate.yaml (default: $FLEETSTATE_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("fleetstate-controller")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	logger = logger.With("component", "controller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn := bussocket.NewClient(cfg.Broker.SocketPath, logger)
	registry := metrics.NewRegistry()

	handle, err := statesync.StartStateLoop(ctx, conn, statesync.Config{
		ReplayTimeout: cfg.Controller.ReplayTimeout,
		ChangeWindow:  cfg.Controller.ChangeWindow,
		Logger:        logger,
		Metrics:       metrics.NewState(registry),
	})
	if err != nil {
		return err
	}
	defer handle.Close()

	monitor, err := liveness.MonitorDroneState(ctx, conn, liveness.Config{
		Interval: cfg.Controller.HeartbeatInterval,
		Logger:   logger,
		Metrics:  metrics.NewLiveness(registry),
	})
	if err != nil {
		return err
	}
	defer monitor.Close()

	httpCtx, cancelHTTP := context.WithCancel(ctx)
	defer cancelHTTP()
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- metrics.ListenAndServe(httpCtx, cfg.Controller.ListenAddress,
			newMux(handle, monitor, registry, logger), logger)
	}()

	logger.Info("controller running",
		"version", version.Info(),
		"socket", cfg.Broker.SocketPath,
		"listen", cfg.Controller.ListenAddress,
		"sequence", handle.Sequence(),
	)

	// Cancelling ctx also stops the loop and the monitor, so their Done
	// channels may win the select during a clean shutdown.
	shutdown := func() error {
		logger.Info("shutting down", "sequence", handle.Sequence())
		cancelHTTP()
		return <-httpDone
	}
	select {
	case <-ctx.Done():
		return shutdown()
	case <-handle.Done():
		if ctx.Err() != nil {
			return shutdown()
		}
		return handle.Err()
	case <-monitor.Done():
		if ctx.Err() != nil {
			return shutdown()
		}
		return monitor.Err()
	case err := <-httpDone:
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("http server stopped: %w", err)
	}
}
