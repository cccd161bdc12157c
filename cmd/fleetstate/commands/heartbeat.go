// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/liveness"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

func heartbeatCommand(stdout io.Writer) *cli.Command {
	var (
		conn    connection
		ready   bool
		running int
	)
	return &cli.Command{
		Name:    "heartbeat",
		Summary: "Send one drone heartbeat",
		Description: `Publish a single heartbeat on behalf of a drone. Useful for bringing
a drone back online by hand and for testing the liveness monitor.`,
		Usage: "fleetstate heartbeat CLUSTER DRONE [--ready] [--running N] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("heartbeat", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.BoolVar(&ready, "ready", true, "report the drone as ready for work")
			flagSet.IntVar(&running, "running", 0, "number of backends the drone is running")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 2, "fleetstate heartbeat CLUSTER DRONE"); err != nil {
				return err
			}
			cluster, err := ref.ParseClusterName(args[0])
			if err != nil {
				return err
			}
			drone, err := ref.ParseDroneID(args[1])
			if err != nil {
				return err
			}
			if running < 0 {
				return fmt.Errorf("--running must not be negative")
			}

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			heartbeat := schema.DroneHeartbeat{
				Cluster:         cluster,
				Drone:           drone,
				Timestamp:       time.Now().UTC(),
				Ready:           ready,
				RunningBackends: running,
			}
			if err := liveness.PublishHeartbeat(session.ctx, session.client, heartbeat); err != nil {
				return err
			}
			return cli.WriteJSON(stdout, heartbeat)
		},
	}
}
