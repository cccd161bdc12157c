// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
)

// Export writes every retained message matching pattern that exists
// when Export starts. Messages published while it runs are not
// included. It returns the number of records written.
func Export(ctx context.Context, conn bus.Conn, pattern string, w io.Writer, compression Compression) (int, error) {
	subscription, err := conn.Subscribe(ctx, pattern, bus.SubscribeOptions{Deliver: bus.DeliverAll})
	if err != nil {
		return 0, fmt.Errorf("archive: subscribing to %s: %w", pattern, err)
	}
	defer subscription.Close()
	backlog := subscription.BacklogSequence()

	writer, err := NewWriter(w, compression, Header{CreatedAt: time.Now().UTC(), Pattern: pattern})
	if err != nil {
		return 0, err
	}
	for backlog > 0 {
		message, err := subscription.Next(ctx)
		if err != nil {
			return writer.Count(), fmt.Errorf("archive: reading %s: %w", pattern, err)
		}
		err = writer.Write(Record{
			Sequence:  message.Sequence,
			Timestamp: message.Timestamp,
			Subject:   message.Subject,
			Data:      message.Data,
		})
		if err != nil {
			return writer.Count(), err
		}
		if message.Sequence >= backlog {
			break
		}
	}
	return writer.Count(), writer.Close()
}

// Import republishes every record of the archive read from r, in
// order. It returns the number of records published.
func Import(ctx context.Context, conn bus.Conn, r io.Reader) (int, error) {
	reader, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	count := 0
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		if _, err := conn.Publish(ctx, record.Subject, record.Data); err != nil {
			return count, fmt.Errorf("archive: publishing record %d to %s: %w", record.Sequence, record.Subject, err)
		}
		count++
	}
}
