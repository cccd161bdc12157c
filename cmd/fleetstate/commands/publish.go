// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/fleetstate/cmd/fleetstate/cli"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/statesync"
	"github.com/bureau-foundation/fleetstate/lib/worldstate"
)

type publishResult struct {
	Subject  string             `json:"subject"`
	Sequence uint64             `json:"sequence,omitempty"`
	Change   *worldstate.Change `json:"change"`
}

func publishCommand(stdout io.Writer) *cli.Command {
	var (
		conn   connection
		noWait bool
	)
	return &cli.Command{
		Name:    "publish",
		Summary: "Publish world-state messages from a JSONC file",
		Description: `Publish one world-state message, or an array of them, read from a
JSON file. Comments and trailing commas are allowed. Use "-" to read
standard input.

By default each message goes through the controller, which publishes
it and replies with the change it caused (null for a repeat). With
--no-wait the messages are published directly and only their stream
sequences are reported.`,
		Usage: "fleetstate publish FILE [--no-wait] [flags]",
		Examples: []cli.Example{
			{
				Description: "Assign a backend",
				Command:     "fleetstate publish assign.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.BoolVar(&noWait, "no-wait", false, "publish directly without waiting for the controller")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExpectArgs(args, 1, "fleetstate publish FILE"); err != nil {
				return err
			}
			messages, err := readMessages(args[0])
			if err != nil {
				return err
			}

			session, err := conn.open()
			if err != nil {
				return err
			}
			defer session.close()

			results := make([]publishResult, 0, len(messages))
			for index, message := range messages {
				result := publishResult{Subject: message.Subject()}
				if noWait {
					result.Sequence, err = statesync.PublishStateMessage(session.ctx, session.client, message)
				} else {
					result.Change, err = statesync.ApplyStateMessage(session.ctx, session.client, message)
				}
				if err != nil {
					return fmt.Errorf("message %d: %w", index, err)
				}
				results = append(results, result)
			}
			return cli.WriteJSON(stdout, results)
		},
	}
}

// readMessages parses a JSONC document holding a message or an array
// of messages.
func readMessages(path string) ([]schema.WorldStateMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) > 0 && data[0] == '[' {
		var messages []schema.WorldStateMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(messages) == 0 {
			return nil, fmt.Errorf("parsing %s: no messages", path)
		}
		return messages, nil
	}
	var message schema.WorldStateMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []schema.WorldStateMessage{message}, nil
}
