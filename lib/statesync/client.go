// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
	"github.com/bureau-foundation/fleetstate/lib/schema"
	"github.com/bureau-foundation/fleetstate/lib/worldstate"
)

// PublishStateMessage publishes message on its cluster's state
// subject without waiting for any loop to apply it. It returns the
// stream sequence.
func PublishStateMessage(ctx context.Context, conn bus.Conn, message schema.WorldStateMessage) (uint64, error) {
	data, err := codec.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("encoding world-state message: %w", err)
	}
	sequence, err := conn.Publish(ctx, message.Subject(), data)
	if err != nil {
		return 0, fmt.Errorf("publishing to %s: %w", message.Subject(), err)
	}
	return sequence, nil
}

// ApplyStateMessage asks the state loop answering control.state.apply
// to publish message and report its effect. The returned change is nil
// when the message was an idempotent repeat.
func ApplyStateMessage(ctx context.Context, conn bus.Conn, message schema.WorldStateMessage) (*worldstate.Change, error) {
	data, err := codec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding world-state message: %w", err)
	}
	reply, err := conn.Request(ctx, schema.SubjectStateApply, data)
	if err != nil {
		return nil, err
	}
	var result ApplyResult
	if err := codec.Unmarshal(reply, &result); err != nil {
		return nil, fmt.Errorf("decoding %s reply: %w", schema.SubjectStateApply, err)
	}
	return result.Change, nil
}

// SetAcmeDnsRecord appends a DNS TXT record value to a cluster. It
// returns once the responding loop has applied the record.
func SetAcmeDnsRecord(ctx context.Context, conn bus.Conn, request schema.SetAcmeDnsRecord) (bool, error) {
	if err := request.Validate(); err != nil {
		return false, err
	}
	data, err := codec.Marshal(request)
	if err != nil {
		return false, fmt.Errorf("encoding acme dns request: %w", err)
	}
	reply, err := conn.Request(ctx, schema.SubjectAcmeDnsSet, data)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := codec.Unmarshal(reply, &ok); err != nil {
		return false, fmt.Errorf("decoding %s reply: %w", schema.SubjectAcmeDnsSet, err)
	}
	return ok, nil
}
