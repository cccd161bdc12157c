// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
)

type showResult struct {
	Sequence uint64 `json:"sequence"`
	State    any    `json:"state"`
}

func showCommand(stdout io.Writer) *cli.Command {
	var (
		conn    connection
		cluster string
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Print the current world state",
		Description: `Replay the world-state stream and print the resulting state as JSON.

The replay runs a read-only state loop: it answers no requests and
exits as soon as the history up to now has been applied.`,
		Usage: "fleetstate show [--cluster NAME] [flags]",
		Examples: []cli.Example{
			{Description: "Everything", Command: "fleetstate show"},
			{Description: "One cluster", Command: "fleetstate show --cluster prod-east"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&cluster, "cluster", "", "print only this cluster")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 0, "fleetstate show [--cluster NAME]"); err != nil {
				return err
			}
			var name ref.ClusterName
			if cluster != "" {
				parsed, err := ref.ParseClusterName(cluster)
				if err != nil {
					return err
				}
				name = parsed
			}

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			handle, err := statesync.StartStateLoop(session.ctx, session.client, statesync.Config{
				ReadOnly:      true,
				ReplayTimeout: conn.timeout,
				Logger:        session.logger,
			})
			if err != nil {
				return err
			}
			world, sequence := handle.Snapshot()
			handle.Close()

			result := showResult{Sequence: sequence, State: world}
			if !name.IsZero() {
				clusterState, ok := world.Cluster(name)
				if !ok {
					return fmt.Errorf("unknown cluster %q", name)
				}
				result.State = clusterState
			}
			return cli.WriteJSON(stdout, result)
		},
	}
}
