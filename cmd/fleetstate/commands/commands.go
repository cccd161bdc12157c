// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the fleetstate operator command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/bussocket"
	"github.com/bureau-foundation/fleetstate/lib/config"
	"github.com/bureau-foundation/fleetstate/lib/version"
)

// Root returns the fleetstate command tree. Command results are written
// to stdout.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name: "fleetstate",
		Description: `fleetstate: operator tool for the fleet world-state stream.

Reads the replicated cluster state, publishes world-state messages and
heartbeats, and exports or imports the retained stream.`,
		Subcommands: []*cli.Command{
			showCommand(stdout),
			publishCommand(stdout),
			setTxtCommand(stdout),
			heartbeatCommand(stdout),
			exportCommand(stdout),
			importCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(stdout, "fleetstate %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// connection holds the flags every bus-facing command shares.
type connection struct {
	configPath string
	socketPath string
	timeout    time.Duration
}

func (c *connection) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "path to fleetstate.yaml (default: $FLEETSTATE_CONFIG)")
	flagSet.StringVar(&c.socketPath, "socket", "", "broker socket path (default: broker.socket_path from config)")
	flagSet.DurationVar(&c.timeout, "timeout", 30*time.Second, "overall deadline for the command")
}

// session is an open connection to the broker for one command run.
type session struct {
	client *bussocket.Client
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// open resolves configuration and returns a session bounded by the
// timeout and by SIGINT or SIGTERM. The caller must call close.
func (c *connection) open() (*session, error) {
	cfg, err := config.Resolve(c.configPath)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(level)

	socketPath := c.socketPath
	if socketPath == "" {
		socketPath = cfg.Broker.SocketPath
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancelTimeout := context.WithTimeout(ctx, c.timeout)
	return &session{
		client: bussocket.NewClient(socketPath, logger),
		logger: logger,
		ctx:    ctx,
		cancel: func() {
			cancelTimeout()
			stopSignals()
		},
	}, nil
}

func (s *session) close() { s.cancel() }
