// Package server implements the completion-driven HTTP/1.1 server of
// spec.md §4.7, grounded on original_source/src/server.hpp's
// Server<Connection>/Session template, generalized from a single
// compile-time Connection type to transport.Factory so the same acceptor
// runs over plain TCP or TLS. New always binds a TCP listen socket, so
// Unix domain sockets are not served through this acceptor.
package server

import (
	"github.com/nczempin/htcpp-uring/config"
	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/internal/slog"
	"github.com/nczempin/htcpp-uring/ioqueue"
	"github.com/nczempin/htcpp-uring/metrics"
	"github.com/nczempin/htcpp-uring/transport"
)

// Handler is handed a parsed Request and a Responder bound to the
// session that produced it, the Go analogue of server.hpp's
// std::function<void(Request, Responder)>. The handler is free to call
// Respond synchronously before returning, or to stash the Responder and
// call it later from other code (e.g. after an async lookup) — spec.md
// §4.7's handler contract requires the responder be callable
// asynchronously.
type Handler func(req *httpcore.Request, responder Responder)

// Server owns the listen socket and accept loop; every accepted
// connection becomes a self-owning Session.
type Server struct {
	engine     ioqueue.Engine
	factory    transport.Factory
	listenFd   int
	cfg        config.Config
	handler    Handler
	metrics    *metrics.Registry
}

// New creates a listen socket bound per cfg and wires it to engine. The
// factory decides what kind of Connection an accepted fd becomes (plain
// TCP or TLS); pass transport.TCPFactory{} for the common case.
func New(engine ioqueue.Engine, factory transport.Factory, cfg config.Config, reg *metrics.Registry, handler Handler) (*Server, error) {
	listenFd, err := transport.CreateTCPListenSocket(cfg.ListenPort, cfg.ListenAddress, cfg.ListenBacklog)
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:   engine,
		factory:  factory,
		listenFd: listenFd,
		cfg:      cfg,
		handler:  handler,
		metrics:  reg,
	}, nil
}

// Start submits the first accept and then runs the engine's completion
// loop, mirroring Server::start's accept()-then-io_.run() sequencing.
// Start blocks until the engine is stopped.
func (s *Server) Start() {
	s.accept()
	s.engine.Run()
}

// Stop tears down the engine. Sessions with I/O still in flight are not
// completed: once the engine stops, their callbacks are never dispatched.
func (s *Server) Stop() {
	s.engine.Stop()
}

// accept submits one accept SQE and busy-retries on failure to submit,
// exactly mirroring original_source's accept()'s "force it into the SQR"
// loop (spec.md §4.6's forward-progress guarantee).
func (s *Server) accept() {
	for !s.engine.Accept(s.listenFd, s.handleAccept) {
	}
}

func (s *Server) handleAccept(err error, fd int) {
	if err != nil {
		slog.Errorf("error in accept: %v", err)
		s.metrics.AcceptError(err.Error())
		s.accept()
		return
	}

	s.metrics.ConnAccepted()
	remoteAddr := acceptedRemoteAddr(fd)
	conn, ok := s.factory.Create(s.engine, fd, remoteAddr)
	if !ok {
		slog.Errorf("connection factory refused accepted fd, closing")
		s.engine.Close(fd, func(error) {})
		s.accept()
		return
	}

	newSession(conn, s.cfg, s.handler, s.metrics, remoteAddr).start()
	s.accept()
}

// acceptedRemoteAddr renders the accepted peer address. The Engine
// interface hands back only the raw fd from accept(2), not the sockaddr
// the kernel filled in (both bindings' accept SQEs expose that
// differently), so this re-derives it with getpeername(2) instead,
// matching inet_ntoa(acceptAddr_.sin_addr) in handleAccept.
func acceptedRemoteAddr(fd int) string {
	return transport.PeerAddr(fd)
}
