// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/bussocket"
	"github.com/bureau-foundation/fleetstate/lib/config"
	"github.com/bureau-foundation/fleetstate/lib/journal"
	"github.com/bureau-foundation/fleetstate/lib/metrics"
	"github.com/bureau-foundation/fleetstate/lib/process"
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
		version.Print("fleetstate-broker")
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
	logger = logger.With("component", "broker")
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := journal.Open(journal.Config{Path: cfg.Broker.JournalPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer store.Close()

	registry := metrics.NewRegistry()
	broker, err := bus.NewBroker(bus.BrokerConfig{
		Journal: store,
		Retain:  cfg.Broker.Retain,
		Logger:  logger,
		Metrics: metrics.NewBroker(registry),
	})
	if err != nil {
		return err
	}
	defer broker.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() {
		errs <- bussocket.NewServer(cfg.Broker.SocketPath, broker, logger).Serve(ctx)
	}()
	pending := 1
	if cfg.Broker.MetricsAddress != "" {
		pending++
		go func() {
			errs <- metrics.ListenAndServe(ctx, cfg.Broker.MetricsAddress, metrics.Handler(registry), logger)
		}()
	}

	logger.Info("broker running",
		"version", version.Info(),
		"socket", cfg.Broker.SocketPath,
		"journal", cfg.Broker.JournalPath,
		"sequence", broker.Sequence(),
	)

	var result error
	for ; pending > 0; pending-- {
		err := <-errs
		if err != nil && result == nil {
			result = err
		}
		// The first server to return takes the other one down.
		cancel()
	}
	logger.Info("shutting down", "sequence", broker.Sequence())
	if result != nil && !errors.Is(result, context.Canceled) {
		return result
	}
	return nil
}
