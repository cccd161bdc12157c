// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for fleetstate
// binaries.
//
// Configuration is loaded from a single file specified by either the
// FLEETSTATE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. Binaries
// that run without any file use [Default].
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production defaults to JSON logs.
//
// Path fields are expanded after loading: ${HOME}, ${FLEETSTATE_ROOT}
// and ${VAR:-default} patterns. No other environment variables
// override config values.
package config
