// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bussocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout bounds the wait for a response envelope when ctx
// has no deadline of its own.
const responseReadTimeout = 45 * time.Second

// Client is a bus.Conn that talks to a Server. Publish and Request
// open one connection per call; every Subscribe and Handle holds its
// own connection for as long as it is open.
type Client struct {
	socketPath string
	logger     *slog.Logger
}

var _ bus.Conn = (*Client)(nil)

// NewClient returns a client for the server at socketPath. No
// connection is made until the first operation.
func NewClient(socketPath string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{socketPath: socketPath, logger: logger}
}

// SocketPath returns the server socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// open dials the server, writes req and reads the response envelope.
// On success the connection and its decoder are returned for
// streaming actions; the caller owns the connection.
func (c *Client) open(ctx context.Context, req request) (net.Conn, *codec.Decoder, Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, nil, Response{}, fmt.Errorf("%w: connecting to %s: %v", bus.ErrClosed, c.socketPath, err)
	}

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		conn.Close()
		return nil, nil, Response{}, fmt.Errorf("%w: writing %s request: %v", bus.ErrClosed, req.Action, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(responseReadTimeout)
	}
	conn.SetReadDeadline(deadline)

	// Unblock the read if ctx is cancelled first.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	decoder := codec.NewDecoder(conn)
	var response Response
	err = decoder.Decode(&response)
	stop()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, nil, Response{}, ctx.Err()
		}
		return nil, nil, Response{}, fmt.Errorf("%w: reading %s response: %v", bus.ErrClosed, req.Action, err)
	}
	conn.SetReadDeadline(time.Time{})
	return conn, decoder, response, nil
}

// call performs a one-shot action and decodes the response data into
// result.
func (c *Client) call(ctx context.Context, req request, result any) error {
	conn, _, response, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	conn.Close()

	if !response.OK {
		return decodeError(req.Action, req.Subject, response.Code, response.Error)
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", req.Action, err)
		}
	}
	return nil
}

// Publish implements bus.Conn.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) (uint64, error) {
	if err := bus.ValidateSubject(subject); err != nil {
		return 0, err
	}
	var result publishResult
	if err := c.call(ctx, request{Action: actionPublish, Subject: subject, Data: data}, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// Request implements bus.Conn.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := bus.ValidateSubject(subject); err != nil {
		return nil, err
	}
	var reply []byte
	if err := c.call(ctx, request{Action: actionRequest, Subject: subject, Data: data}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Subscribe implements bus.Conn. The subscription owns a connection;
// if the server goes away Next returns an error wrapping bus.ErrClosed.
func (c *Client) Subscribe(ctx context.Context, pattern string, options bus.SubscribeOptions) (bus.Subscription, error) {
	if err := bus.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	req := request{Action: actionSubscribe, Pattern: pattern, Deliver: options.Deliver.String()}
	conn, decoder, response, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if !response.OK {
		conn.Close()
		return nil, decodeError(req.Action, pattern, response.Code, response.Error)
	}
	var result subscribeResult
	if err := codec.Unmarshal(response.Data, &result); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decoding subscribe response: %w", err)
	}

	sub := &remoteSubscription{
		conn:    conn,
		backlog: result.BacklogSequence,
		frames:  make(chan deliveryFrame, 64),
		closed:  make(chan struct{}),
	}
	go sub.read(decoder)
	return sub, nil
}

type remoteSubscription struct {
	conn    net.Conn
	backlog uint64
	frames  chan deliveryFrame

	// readErr is set before frames is closed.
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *remoteSubscription) read(decoder *codec.Decoder) {
	defer close(s.frames)
	for {
		var frame deliveryFrame
		if err := decoder.Decode(&frame); err != nil {
			s.readErr = err
			return
		}
		if frame.Error != "" {
			s.readErr = decodeError(actionSubscribe, frame.Subject, frame.Code, frame.Error)
			return
		}
		select {
		case s.frames <- frame:
		case <-s.closed:
			return
		}
	}
}

func (s *remoteSubscription) Next(ctx context.Context) (bus.Message, error) {
	select {
	case <-s.closed:
		return bus.Message{}, bus.ErrClosed
	default:
	}

	select {
	case frame, ok := <-s.frames:
		if !ok {
			return bus.Message{}, s.streamError()
		}
		return bus.Message{
			Subject:   frame.Subject,
			Data:      frame.Data,
			Sequence:  frame.Sequence,
			Timestamp: frame.Timestamp,
		}, nil
	case <-s.closed:
		return bus.Message{}, bus.ErrClosed
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
}

func (s *remoteSubscription) streamError() error {
	err := s.readErr
	if err == nil || errors.Is(err, bus.ErrClosed) {
		return bus.ErrClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: server disconnected", bus.ErrClosed)
	}
	var responderErr *bus.ResponderError
	var serverErr *ServerError
	if errors.As(err, &responderErr) || errors.As(err, &serverErr) {
		return err
	}
	return fmt.Errorf("%w: %v", bus.ErrClosed, err)
}

func (s *remoteSubscription) BacklogSequence() uint64 { return s.backlog }

func (s *remoteSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}

// Handle implements bus.Conn. Requests are served concurrently, each
// on its own goroutine. The returned Responder's Close drops the
// connection, which unregisters the responder on the server.
func (c *Client) Handle(ctx context.Context, subject string, handler bus.Handler) (bus.Responder, error) {
	if err := bus.ValidateSubject(subject); err != nil {
		return nil, err
	}
	req := request{Action: actionHandle, Subject: subject}
	conn, decoder, response, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if !response.OK {
		conn.Close()
		return nil, decodeError(req.Action, subject, response.Code, response.Error)
	}

	serveContext, cancel := context.WithCancel(context.Background())
	responder := &remoteHandler{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  c.logger,
	}
	go responder.serve(serveContext, decoder, handler)
	return responder, nil
}

type remoteHandler struct {
	conn    net.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger
	writeMu sync.Mutex
	encoder *codec.Encoder
	once    sync.Once
}

func (h *remoteHandler) serve(ctx context.Context, decoder *codec.Decoder, handler bus.Handler) {
	defer close(h.done)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var frame requestFrame
		if err := decoder.Decode(&frame); err != nil {
			h.cancel()
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			reply := replyFrame{ID: frame.ID}
			data, err := handler(ctx, frame.Subject, frame.Data)
			if err != nil {
				reply.Error = err.Error()
			} else {
				reply.Data = data
			}
			h.writeMu.Lock()
			defer h.writeMu.Unlock()
			h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := h.encoder.Encode(reply); err != nil {
				h.logger.Debug("writing reply failed", "subject", frame.Subject, "error", err)
			}
		}()
	}
}

// Done is closed once the connection to the server is gone and every
// in-flight handler has returned.
func (h *remoteHandler) Done() <-chan struct{} { return h.done }

func (h *remoteHandler) Close() error {
	h.once.Do(func() {
		h.cancel()
		h.conn.Close()
	})
	return nil
}
