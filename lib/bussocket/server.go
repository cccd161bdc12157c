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
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/bus"
	"github.com/bureau-foundation/fleetstate/lib/codec"
)

// readTimeout bounds how long the server waits for a connection's
// initial request.
const readTimeout = 30 * time.Second

// writeTimeout bounds each response or frame write.
const writeTimeout = 10 * time.Second

// maxRequestSize caps the initial request on a connection.
const maxRequestSize = 4 * 1024 * 1024

// Server exposes a bus.Conn on a Unix socket.
type Server struct {
	socketPath string
	conn       bus.Conn
	logger     *slog.Logger

	// activeConnections tracks in-flight connections so Serve can wait
	// for them on shutdown.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath and
// forward every operation to conn.
func NewServer(socketPath string, conn bus.Conn, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{socketPath: socketPath, conn: conn, logger: logger}
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and waits for open connections to finish. Streaming
// connections end when ctx is cancelled. A stale socket file is
// removed before listening and the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("bus socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	decoder := codec.NewDecoder(conn)

	var req request
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeResponse(conn, failure(fmt.Errorf("invalid request: %w", err)))
		return
	}

	switch req.Action {
	case actionPublish:
		s.handlePublish(ctx, conn, req)
	case actionRequest:
		s.handleRequest(ctx, conn, req)
	case actionSubscribe:
		conn.SetReadDeadline(time.Time{})
		s.handleSubscribe(ctx, conn, req)
	case actionHandle:
		conn.SetReadDeadline(time.Time{})
		s.handleResponder(ctx, conn, decoder, req)
	case "":
		s.writeResponse(conn, Response{Error: "missing required field: action", Code: codeInternal})
	default:
		s.writeResponse(conn, Response{Error: fmt.Sprintf("unknown action %q", req.Action), Code: codeInternal})
	}
}

func (s *Server) handlePublish(ctx context.Context, conn net.Conn, req request) {
	sequence, err := s.conn.Publish(ctx, req.Subject, req.Data)
	if err != nil {
		s.logger.Debug("publish failed", "subject", req.Subject, "error", err)
		s.writeResponse(conn, failure(err))
		return
	}
	s.writeResponse(conn, success(publishResult{Sequence: sequence}))
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req request) {
	reply, err := s.conn.Request(ctx, req.Subject, req.Data)
	if err != nil {
		s.logger.Debug("request failed", "subject", req.Subject, "error", err)
		s.writeResponse(conn, failure(err))
		return
	}
	s.writeResponse(conn, success(reply))
}

// handleSubscribe streams deliveries until the client disconnects, ctx
// is cancelled, or the subscription ends.
func (s *Server) handleSubscribe(ctx context.Context, conn net.Conn, req request) {
	deliver, err := parseDeliver(req.Deliver)
	if err != nil {
		s.writeResponse(conn, failure(err))
		return
	}

	streamContext, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.conn.Subscribe(streamContext, req.Pattern, bus.SubscribeOptions{Deliver: deliver})
	if err != nil {
		s.writeResponse(conn, failure(err))
		return
	}
	defer sub.Close()

	if !s.writeResponse(conn, success(subscribeResult{BacklogSequence: sub.BacklogSequence()})) {
		return
	}

	// The client never writes after its request; a read returning
	// means it went away.
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	encoder := codec.NewEncoder(conn)
	for {
		message, err := sub.Next(streamContext)
		if err != nil {
			if streamContext.Err() == nil {
				code, text := errorCode(err)
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				encoder.Encode(deliveryFrame{Error: text, Code: code})
			}
			s.logger.Debug("subscription stream ended", "pattern", req.Pattern, "error", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = encoder.Encode(deliveryFrame{
			Subject:   message.Subject,
			Data:      message.Data,
			Sequence:  message.Sequence,
			Timestamp: message.Timestamp,
		})
		if err != nil {
			s.logger.Debug("subscription write failed", "pattern", req.Pattern, "error", err)
			return
		}
	}
}

// remoteResponder forwards bus requests to a client over one
// connection.
type remoteResponder struct {
	conn    net.Conn
	encoder *codec.Encoder

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan replyFrame
	done    chan struct{}
}

func (r *remoteResponder) handle(ctx context.Context, subject string, data []byte) ([]byte, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	replies := make(chan replyFrame, 1)
	r.pending[id] = replies
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := r.encoder.Encode(requestFrame{ID: id, Subject: subject, Data: data})
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	if err != nil {
		return nil, fmt.Errorf("forwarding request to remote responder: %w", err)
	}

	select {
	case reply := <-replies:
		if reply.Error != "" {
			return nil, errors.New(reply.Error)
		}
		return reply.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, fmt.Errorf("remote responder for %s disconnected", subject)
	}
}

// handleResponder registers a bus responder that forwards to this
// connection and reads replies until the client disconnects.
func (s *Server) handleResponder(ctx context.Context, conn net.Conn, decoder *codec.Decoder, req request) {
	remote := &remoteResponder{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		pending: make(map[uint64]chan replyFrame),
		done:    make(chan struct{}),
	}

	registration, err := s.conn.Handle(ctx, req.Subject, remote.handle)
	if err != nil {
		s.writeResponse(conn, failure(err))
		return
	}
	defer registration.Close()

	// The success envelope goes out under the responder lock so it
	// cannot interleave with a request frame.
	remote.mu.Lock()
	ok := s.writeResponse(conn, Response{OK: true})
	remote.mu.Unlock()
	if !ok {
		return
	}
	s.logger.Info("remote responder registered", "subject", req.Subject)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-remote.done:
		}
	}()

	for {
		var reply replyFrame
		if err := decoder.Decode(&reply); err != nil {
			close(remote.done)
			s.logger.Info("remote responder disconnected", "subject", req.Subject, "error", err)
			return
		}
		remote.mu.Lock()
		replies, found := remote.pending[reply.ID]
		remote.mu.Unlock()
		if found {
			select {
			case replies <- reply:
			default:
			}
		}
	}
}

func success(result any) Response {
	response := Response{OK: true}
	if result == nil {
		return response
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return failure(fmt.Errorf("marshaling response: %w", err))
	}
	response.Data = data
	return response
}

func failure(err error) Response {
	code, message := errorCode(err)
	return Response{Error: message, Code: code}
}

// writeResponse writes one envelope and reports whether it succeeded.
func (s *Server) writeResponse(conn net.Conn, response Response) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
		return false
	}
	return true
}
