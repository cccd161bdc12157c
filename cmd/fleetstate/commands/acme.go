// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/ref"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
)

func setTxtCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "set-txt",
		Summary: "Append an ACME DNS TXT record to a cluster",
		Usage:   "fleetstate set-txt CLUSTER VALUE [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set-txt", pflag.ContinueOnError)
			conn.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 2, "fleetstate set-txt CLUSTER VALUE"); err != nil {
				return err
			}
			cluster, err := ref.ParseClusterName(args[0])
			if err != nil {
				return err
			}

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			ok, err := statesync.SetAcmeDnsRecord(session.ctx, session.client, schema.SetAcmeDnsRecord{
				Cluster: cluster,
				Value:   args[1],
			})
			if err != nil {
				return err
			}
			return cli.WriteJSON(stdout, map[string]bool{"ok": ok})
		},
	}
}
