// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the fleetstate
// operator CLI.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, and
// either a Run function or nested subcommands. [Command.Execute]
// parses flags, routes to subcommands and prints help. Unknown
// commands and flags get a "did you mean" suggestion based on edit
// distance.
package cli
