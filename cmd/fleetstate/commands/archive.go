// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/archive"
	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/schema"
)

type transferResult struct {
	File    string `json:"file"`
	Records int    `json:"records"`
}

func exportCommand(stdout io.Writer) *cli.Command {
	var (
		conn        connection
		pattern     string
		compression string
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write retained stream history to an archive file",
		Description: `Export every retained message matching the pattern, as of the moment
the export starts, to an archive file.`,
		Usage: "fleetstate export FILE [--pattern P] [--compression none|lz4|zstd] [flags]",
		Examples: []cli.Example{
			{Description: "Back up the world state", Command: "fleetstate export state.fsa"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&pattern, "pattern", schema.SubjectStateAll, "subject pattern to export")
			flagSet.StringVar(&compression, "compression", "zstd", "archive compression: none, lz4 or zstd")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 1, "fleetstate export FILE"); err != nil {
				return err
			}
			if err := bus.ValidatePattern(pattern); err != nil {
				return err
			}
			method, err := archive.ParseCompression(compression)
			if err != nil {
				return err
			}

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			file, err := os.Create(args[0])
			if err != nil {
				return err
			}
			count, err := archive.Export(session.ctx, session.client, pattern, file, method)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return errors.Join(err, os.Remove(args[0]))
			}
			session.logger.Info("export complete", "file", args[0], "records", count, "compression", method)
			return cli.WriteJSON(stdout, transferResult{File: args[0], Records: count})
		},
	}
}

func importCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "import",
		Summary: "Republish the records of an archive file",
		Description: `Publish every record of an archive, in order, on its original
subject. Records receive new sequence numbers. Importing into a stream
that already holds the same facts is harmless: repeated world-state
messages do not change the state.`,
		Usage: "fleetstate import FILE [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			conn.bind(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 1, "fleetstate import FILE"); err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			count, err := archive.Import(session.ctx, session.client, file)
			if err != nil {
				return err
			}
			return cli.WriteJSON(stdout, transferResult{File: args[0], Records: count})
		},
	}
}
