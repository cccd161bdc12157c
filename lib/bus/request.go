// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"fmt"
)

type responder struct {
	broker  *Broker
	id      uint64
	subject string
	handler Handler
}

func (r *responder) Close() error {
	r.broker.removeResponder(r)
	return nil
}

// Handle implements Conn. Responders are tried in registration order;
// the first one still registered receives each request.
func (b *Broker) Handle(ctx context.Context, subject string, handler Handler) (Responder, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	registered := &responder{broker: b, id: b.nextID, subject: subject, handler: handler}
	b.responders[subject] = append(b.responders[subject], registered)

	b.logger.Debug("responder registered", "subject", subject)
	return registered, nil
}

func (b *Broker) removeResponder(target *responder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.responders[target.subject]
	for index, candidate := range list {
		if candidate.id == target.id {
			b.responders[target.subject] = append(list[:index:index], list[index+1:]...)
			break
		}
	}
	if len(b.responders[target.subject]) == 0 {
		delete(b.responders, target.subject)
	}
}

type replyResult struct {
	data []byte
	err  error
}

// Request implements Conn. The handler runs on its own goroutine with a
// context that is cancelled when ctx is done or the broker closes.
func (b *Broker) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	list := b.responders[subject]
	var target *responder
	if len(list) > 0 {
		target = list[0]
	}
	b.mu.Unlock()

	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResponders, subject)
	}

	handlerContext, cancel := context.WithCancel(ctx)
	defer cancel()
	request := append([]byte(nil), data...)
	results := make(chan replyResult, 1)
	go func() {
		reply, err := target.handler(handlerContext, subject, request)
		results <- replyResult{data: reply, err: err}
	}()

	select {
	case result := <-results:
		if result.err != nil {
			return nil, &ResponderError{Subject: subject, Message: result.err.Error()}
		}
		return result.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}
