// Package grpc implements the JSON-over-TCP RPC layer behind the daemon's
// control plane: method registration, request dispatch under a per-request
// timeout, and error classification that survives the process boundary.
//
// The protocol is newline-delimited JSON over a persistent TCP connection.
// A request names a "Service.Method", carries an id the response echoes
// back, and a params payload the handler decodes itself.
//
// Example server:
//
//	s := grpc.NewServer(30 * time.Second)
//	s.Register("Sync.Progress", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    // ... read counters ...
//	    return &proto.ProgressResponse{...}, nil
//	})
//	s.Serve(":7700")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:7700")
//	var resp proto.ProgressResponse
//	c.Call("Sync.Progress", &proto.ProgressRequest{}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code classifies the error
// (when present) so clients can match sentinels without string comparison.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server accepts control connections and dispatches their requests.
type Server struct {
	handlers       map[string]HandlerFunc
	listener       net.Listener
	logger         *slog.Logger
	requestTimeout time.Duration
	mu             sync.RWMutex
	wg             sync.WaitGroup
	done           chan struct{}
}

// NewServer creates an RPC server. Each dispatched request runs under a
// context bounded by requestTimeout (unbounded if zero).
func NewServer(requestTimeout time.Duration) *Server {
	return &Server{
		handlers:       make(map[string]HandlerFunc),
		logger:         logger.WithComponent("rpc.server"),
		requestTimeout: requestTimeout,
		done:           make(chan struct{}),
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Listen binds the server to addr without accepting connections yet.
// Useful for binding to port 0 and reading the chosen address back.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listen address, or "" before Listen/Serve.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections on addr until Stop is called. If Listen was
// already called the existing listener is used and addr is ignored.
func (s *Server) Serve(addr string) error {
	if s.listener == nil {
		if err := s.Listen(addr); err != nil {
			return err
		}
	}
	ln := s.listener
	s.logger.Info("accepting control connections", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("dropping connection on malformed request",
					"remote", conn.RemoteAddr().String(),
					"error", err,
				)
			}
			return
		}
		if err := enc.Encode(s.serve(req)); err != nil {
			s.logger.Error("response write failed", "method", req.Method, "error", err)
			return
		}
	}
}

// serve runs one request through its handler and shapes the response,
// classifying any error so the client can rebuild the matching sentinel.
func (s *Server) serve(req Request) Response {
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		return Response{
			ID:    req.ID,
			Error: fmt.Sprintf("unknown method: %s", req.Method),
			Code:  "unknown_method",
		}
	}

	start := time.Now()
	data, err := s.dispatch(handler, req.Params)
	if err != nil {
		s.logger.Debug("request failed", "method", req.Method, "elapsed", time.Since(start), "error", err)
		return Response{ID: req.ID, Error: err.Error(), Code: apperrors.Code(err)}
	}
	s.logger.Debug("request served", "method", req.Method, "elapsed", time.Since(start))
	return Response{ID: req.ID, Data: data}
}

// dispatch bounds the handler by the configured request timeout and converts
// a handler panic into an internal error response.
func (s *Server) dispatch(handler HandlerFunc, params json.RawMessage) (data any, err error) {
	ctx := context.Background()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("handler panic", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return handler(ctx, params)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and waits for in-flight connections to finish.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
