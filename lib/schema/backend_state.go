// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// BackendState is a stage in a backend's lifecycle. The state stream
// records transitions between these values; nothing in this module
// enforces an ordering between them.
type BackendState string

const (
	BackendStateLoading             BackendState = "Loading"
	BackendStateErrorLoading        BackendState = "ErrorLoading"
	BackendStateStarting            BackendState = "Starting"
	BackendStateErrorStarting       BackendState = "ErrorStarting"
	BackendStateReady               BackendState = "Ready"
	BackendStateTimedOutBeforeReady BackendState = "TimedOutBeforeReady"
	BackendStateFailed              BackendState = "Failed"
	BackendStateExited              BackendState = "Exited"
	BackendStateSwept               BackendState = "Swept"
	BackendStateLost                BackendState = "Lost"
	BackendStateTerminated          BackendState = "Terminated"
)

var knownBackendStates = map[BackendState]bool{
	BackendStateLoading:             true,
	BackendStateErrorLoading:        true,
	BackendStateStarting:            true,
	BackendStateErrorStarting:       true,
	BackendStateReady:               true,
	BackendStateTimedOutBeforeReady: true,
	BackendStateFailed:              true,
	BackendStateExited:              true,
	BackendStateSwept:               true,
	BackendStateLost:                true,
	BackendStateTerminated:          true,
}

// IsKnown reports whether s is one of the defined lifecycle stages.
func (s BackendState) IsKnown() bool {
	return knownBackendStates[s]
}

// Terminal reports whether no further transitions are expected after s.
func (s BackendState) Terminal() bool {
	switch s {
	case BackendStateErrorLoading, BackendStateErrorStarting,
		BackendStateTimedOutBeforeReady, BackendStateFailed,
		BackendStateExited, BackendStateSwept, BackendStateLost,
		BackendStateTerminated:
		return true
	}
	return false
}

// String returns the state name.
func (s BackendState) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s BackendState) MarshalText() ([]byte, error) {
	if !s.IsKnown() {
		return nil, fmt.Errorf("unknown backend state %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are
// rejected.
func (s *BackendState) UnmarshalText(data []byte) error {
	candidate := BackendState(data)
	if !candidate.IsKnown() {
		return fmt.Errorf("unknown backend state %q", string(data))
	}
	*s = candidate
	return nil
}
