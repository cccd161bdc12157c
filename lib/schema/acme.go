// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"

	"github.com/bureau-foundation/fleetstate/lib/ref"
)

// SetAcmeDnsRecord asks the controller to publish a DNS TXT record value
// for the cluster's ACME DNS-01 challenge. Sent as a request on
// [SubjectAcmeDnsSet]; the reply is true once the record is visible in
// the controller's state.
type SetAcmeDnsRecord struct {
	Cluster ref.ClusterName `json:"cluster"`
	Value   string          `json:"value"`
}

// Validate checks that the request names a cluster and a value.
func (r SetAcmeDnsRecord) Validate() error {
	if r.Cluster.IsZero() {
		return errors.New("set acme dns record: missing cluster")
	}
	if r.Value == "" {
		return errors.New("set acme dns record: empty value")
	}
	return nil
}
