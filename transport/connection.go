// Package transport provides the uniform send/recv/shutdown/close surface
// of spec.md §4.5 over plain TCP, TLS and Unix domain sockets, all backed
// by an ioqueue.Engine.
package transport

import (
	"time"

	"github.com/nczempin/htcpp-uring/ioqueue"
)

// Connection is the capability set spec.md §9 calls "Session generic over
// {send, recv, shutdown, close, optional setHostname}". Server sessions
// and client sessions are both written against this interface so the same
// state machine logic runs over plain and TLS-backed sockets.
type Connection interface {
	Recv(buf []byte, cb ioqueue.HandlerEcRes)
	RecvDeadline(buf []byte, deadline time.Time, cb ioqueue.HandlerEcRes)
	Send(buf []byte, cb ioqueue.HandlerEcRes)
	Shutdown(cb ioqueue.HandlerEc)
	Close(cb ioqueue.HandlerEc)
	RemoteAddr() string
}

// HostnameSetter is implemented by connections that need SNI configured
// before the handshake, i.e. TLS client connections (spec.md §4.8).
type HostnameSetter interface {
	SetHostname(host string)
}

// Factory mirrors spec.md §6's ConnectionFactory::create, which may
// refuse (e.g. the TLS certificate is not loaded yet).
type Factory interface {
	Create(engine ioqueue.Engine, fd int, remoteAddr string) (Connection, bool)
}
