package ipc

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// HandlerFunc processes one decoded request and returns the response to
// frame back to the client.
type HandlerFunc func(req *Request) *Response

// Server answers CLI requests on a unix socket, one request per connection.
// Register all handlers before Start; registration is not synchronized.
type Server struct {
	path     string
	handlers map[string]HandlerFunc
	logf     func(format string, args ...any)
	deadline time.Duration

	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(socketPath string) *Server {
	return &Server{
		path:     socketPath,
		handlers: make(map[string]HandlerFunc),
		logf:     log.Printf,
		deadline: 30 * time.Second,
	}
}

// SetLogf routes server trouble (accept failures, broken frames, handler
// panics) through the caller's logger instead of the process default.
func (s *Server) SetLogf(logf func(format string, args ...any)) {
	s.logf = logf
}

func (s *Server) SetConnTimeout(d time.Duration) {
	s.deadline = d
}

func (s *Server) Handle(command string, fn HandlerFunc) {
	s.handlers[command] = fn
}

// Start binds the socket and begins accepting in the background. A stale
// socket file from a crashed daemon is removed first; the daemon lock
// already guarantees no live owner exists.
func (s *Server) Start() error {
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

// Stop closes the listener, waits for in-flight connections and removes the
// socket file.
func (s *Server) Stop() error {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("ipc accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// serve handles the single request a connection carries. The recover keeps
// one panicking handler from taking the whole daemon down.
func (s *Server) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logf("ipc handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(s.deadline))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logf("ipc read request: %v", err)
		return
	}
	if err := WriteFrame(conn, s.dispatch(&req)); err != nil {
		s.logf("ipc write response: %v", err)
	}
}

func (s *Server) dispatch(req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return ErrorResponse(ErrCodeInvalidRequest,
			fmt.Sprintf("protocol version %d not supported (want %d)", req.ProtocolVersion, ProtocolVersion))
	}
	fn, ok := s.handlers[req.Command]
	if !ok {
		return ErrorResponse(ErrCodeUnknownCommand, fmt.Sprintf("unknown command: %q", req.Command))
	}
	return fn(req)
}
