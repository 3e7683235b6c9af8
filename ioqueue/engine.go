// Package ioqueue is the async I/O facility interface of spec.md §4.5/§4.6:
// a uniform submission/completion surface over accept/recv/send/connect/
// shutdown/close/timeout, backed by one of two real io_uring bindings
// pulled from the teacher's own go.mod.
package ioqueue

import "time"

// HandlerEc is a completion callback that only carries an error, used for
// close/shutdown/connect.
type HandlerEc func(err error)

// HandlerEcRes is a completion callback carrying an error and a byte
// count / result fd, used for accept/recv/send.
type HandlerEcRes func(err error, res int)

// Engine is the capability set spec.md §9 calls the "connection
// polymorphism" surface generalized to the acceptor's and sessions'
// needs: submit an operation, get a completion callback invoked later on
// the engine's single loop goroutine. Every implementation guarantees
// that callbacks for operations submitted through one Engine value never
// run concurrently with each other, satisfying the per-session ordering
// guarantee of spec.md §5.
type Engine interface {
	// Accept submits an accept(2) against listenFd. On success res is the
	// new connection's fd.
	Accept(listenFd int, cb HandlerEcRes) bool

	// Recv reads into buf, which must stay valid and unmoved until cb
	// fires. res is the byte count (0 means peer EOF).
	Recv(fd int, buf []byte, cb HandlerEcRes) bool

	// RecvDeadline is Recv with an absolute deadline; expiry surfaces as
	// a cancellation error distinct from transport errors (see
	// httperr.IsCanceled).
	RecvDeadline(fd int, buf []byte, deadline time.Time, cb HandlerEcRes) bool

	// Send writes buf; a partial write is reported as res < len(buf) and
	// is not an error.
	Send(fd int, buf []byte, cb HandlerEcRes) bool

	// Connect submits connect(2) to addr.
	Connect(fd int, addr Sockaddr, cb HandlerEc) bool

	// Shutdown performs shutdown(2) on fd (TCP and Unix connections). TLS
	// connections do not call it: their transport-level Shutdown sends
	// close-notify through crypto/tls instead.
	Shutdown(fd int, cb HandlerEc) bool

	// Close unconditionally releases fd.
	Close(fd int, cb HandlerEc) bool

	// RunBlocking runs fn on a dedicated worker goroutine and delivers its
	// result through this engine's own completion loop rather than
	// invoking cb from that worker directly. This is how operations with
	// no native SQE in either binding (crypto/tls handshakes and
	// reads/writes, which block on a blocking net.Conn) still end up
	// serialized on Run's single goroutine alongside every ring
	// completion, preserving the one-goroutine-touches-session-state
	// guarantee spec.md §5 requires.
	RunBlocking(fn func() (int, error), cb HandlerEcRes) bool

	// Timeout arms a timer for d and, unless the returned cancel func is
	// called first, delivers cb through this engine's completion loop
	// once it fires — the portable substitute for a linked-timeout SQE,
	// used to enforce spec.md §4.7's full-read deadline without handing a
	// raw time.AfterFunc goroutine a direct line to invoke cb itself.
	Timeout(d time.Duration, cb HandlerEc) (cancel func())

	// Run drives the engine's completion loop until Stop is called. It
	// must be called from exactly one goroutine, and that goroutine is
	// the one every completion callback runs on.
	Run()

	// Stop makes Run return without waiting for operations still in
	// flight; their callbacks are not invoked.
	Stop()
}

// Sockaddr is the minimal address shape Engine.Connect needs, satisfied by
// both IPv4 and IPv6 socket addresses so the acceptor and client stay
// address-family agnostic (spec.md explicitly does not require IPv6
// support, but addresses it "by design").
type Sockaddr interface {
	sockaddrMarker()
}

// SockaddrInet4 mirrors unix.SockaddrInet4 without requiring this package
// to take a hard x/sys/unix dependency at the interface level.
type SockaddrInet4 struct {
	Port int
	Addr [4]byte
}

func (SockaddrInet4) sockaddrMarker() {}

// SockaddrInet6 mirrors unix.SockaddrInet6.
type SockaddrInet6 struct {
	Port int
	Addr [16]byte
}

func (SockaddrInet6) sockaddrMarker() {}

// SockaddrUnix addresses a Unix domain socket by filesystem path, for
// client-side Engine.Connect against a Unix listener.
type SockaddrUnix struct {
	Path string
}

func (SockaddrUnix) sockaddrMarker() {}
