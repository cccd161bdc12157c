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

// ApplyResult is the reply on control.state.apply.
type ApplyResult struct {
	// Sequence is the stream sequence the message was published at.
	Sequence uint64 `json:"sequence"`

	// Change is what the message did to the tree, or nil when it was
	// an idempotent repeat.
	Change *worldstate.Change `json:"change,omitempty"`
}

func (h *Handle) registerResponders(ctx context.Context) error {
	handlers := []struct {
		subject string
		handler bus.Handler
	}{
		{schema.SubjectStateApply, h.handleApply},
		{schema.SubjectAcmeDnsSet, h.handleAcmeDnsSet},
	}
	for _, entry := range handlers {
		responder, err := h.conn.Handle(ctx, entry.subject, h.instrument(entry.handler))
		if err != nil {
			return fmt.Errorf("statesync: registering %s responder: %w", entry.subject, err)
		}
		if err := h.addResponder(responder); err != nil {
			return fmt.Errorf("statesync: registering %s responder: %w", entry.subject, err)
		}
	}
	return nil
}

func (h *Handle) instrument(handler bus.Handler) bus.Handler {
	return func(ctx context.Context, subject string, data []byte) ([]byte, error) {
		reply, err := handler(ctx, subject, data)
		if err != nil {
			h.metrics.ObserveRequest(subject, "error")
			h.logger.Warn("state request failed", "subject", subject, "error", err)
			return nil, err
		}
		h.metrics.ObserveRequest(subject, "ok")
		return reply, nil
	}
}

func (h *Handle) handleApply(ctx context.Context, _ string, data []byte) ([]byte, error) {
	var message schema.WorldStateMessage
	if err := codec.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("decoding world-state message: %w", err)
	}
	sequence, change, err := h.publishAndWait(ctx, message)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(ApplyResult{Sequence: sequence, Change: change})
}

func (h *Handle) handleAcmeDnsSet(ctx context.Context, _ string, data []byte) ([]byte, error) {
	var request schema.SetAcmeDnsRecord
	if err := codec.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("decoding acme dns request: %w", err)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	message := schema.WorldStateMessage{
		Cluster: request.Cluster,
		Message: schema.AcmeMessage{TxtRecord: request.Value},
	}
	if _, _, err := h.publishAndWait(ctx, message); err != nil {
		return nil, err
	}
	h.logger.Info("acme dns record set", "cluster", request.Cluster)
	return codec.Marshal(true)
}

// publishAndWait puts message on the stream and waits for this loop
// to apply it. It never holds the handle's lock across bus I/O.
func (h *Handle) publishAndWait(ctx context.Context, message schema.WorldStateMessage) (uint64, *worldstate.Change, error) {
	sequence, err := PublishStateMessage(ctx, h.conn, message)
	if err != nil {
		return 0, nil, err
	}
	if sequence == 0 {
		return 0, nil, fmt.Errorf("%s is not retained by the bus", message.Subject())
	}
	change, err := h.WaitForSequence(ctx, sequence)
	if err != nil {
		return sequence, nil, fmt.Errorf("waiting for sequence %d: %w", sequence, err)
	}
	return sequence, change, nil
}
