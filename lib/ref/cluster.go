// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ClusterName identifies an isolated partition of the fleet, for
// example "plane.test". It is also the DNS name ACME TXT records are
// issued for.
type ClusterName struct{ name string }

// ParseClusterName validates name and returns it as a ClusterName.
func ParseClusterName(name string) (ClusterName, error) {
	if err := validateClusterName(name); err != nil {
		return ClusterName{}, err
	}
	return ClusterName{name: name}, nil
}

// MustClusterName is ParseClusterName for constants and tests. Panics
// on an invalid name.
func MustClusterName(name string) ClusterName {
	cluster, err := ParseClusterName(name)
	if err != nil {
		panic(err)
	}
	return cluster
}

// String returns the cluster name.
func (c ClusterName) String() string { return c.name }

// IsZero reports whether c is the zero value.
func (c ClusterName) IsZero() bool { return c.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (c ClusterName) MarshalText() ([]byte, error) {
	if c.name == "" {
		return nil, fmt.Errorf("marshal ClusterName: zero value")
	}
	return []byte(c.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClusterName) UnmarshalText(data []byte) error {
	parsed, err := ParseClusterName(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal ClusterName: %w", err)
	}
	*c = parsed
	return nil
}
