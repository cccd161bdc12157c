// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

const (
	// maxClusterNameLength matches the DNS name limit; cluster names
	// double as the domain that ACME TXT records are issued for.
	maxClusterNameLength = 253

	// maxIDLength bounds drone and backend identifiers.
	maxIDLength = 128
)

// validateClusterName enforces DNS-name-like rules: a-z, 0-9, '-', '_'
// and '.', no empty labels, no leading or trailing '.' or '-'.
func validateClusterName(name string) error {
	if name == "" {
		return fmt.Errorf("cluster name is empty")
	}
	if len(name) > maxClusterNameLength {
		return fmt.Errorf("cluster name %q exceeds %d characters", name, maxClusterNameLength)
	}
	labelLength := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '.':
			if labelLength == 0 {
				return fmt.Errorf("cluster name %q has an empty label", name)
			}
			labelLength = 0
			continue
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
		case c == '-':
			if labelLength == 0 {
				return fmt.Errorf("cluster name %q has a label starting with '-'", name)
			}
		default:
			return fmt.Errorf("cluster name %q contains invalid character %q", name, c)
		}
		labelLength++
	}
	if labelLength == 0 {
		return fmt.Errorf("cluster name %q ends with '.'", name)
	}
	if name[len(name)-1] == '-' {
		return fmt.Errorf("cluster name %q ends with '-'", name)
	}
	return nil
}

// validateID enforces identifier rules shared by drones and backends:
// a-z, A-Z, 0-9, '-' and '_', non-empty, bounded length.
func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s ID is empty", kind)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s ID %q exceeds %d characters", kind, id, maxIDLength)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("%s ID %q contains invalid character %q", kind, id, c)
	}
	return nil
}
