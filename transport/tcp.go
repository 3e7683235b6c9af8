package transport

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nczempin/htcpp-uring/httperr"
	"github.com/nczempin/htcpp-uring/ioqueue"
)

// TCPConnection is the plain-TCP Connection, grounded on the teacher's
// transport/tcp_transport.go connect/socket-option sequence.
type TCPConnection struct {
	engine     ioqueue.Engine
	fd         int
	remoteAddr string
}

// NewTCPConnection wraps an already-connected or already-accepted fd.
func NewTCPConnection(engine ioqueue.Engine, fd int, remoteAddr string) *TCPConnection {
	return &TCPConnection{engine: engine, fd: fd, remoteAddr: remoteAddr}
}

func (c *TCPConnection) RemoteAddr() string { return c.remoteAddr }

func (c *TCPConnection) Recv(buf []byte, cb ioqueue.HandlerEcRes) {
	c.engine.Recv(c.fd, buf, cb)
}

// RecvDeadline races the engine's recv against an absolute deadline timer;
// whichever finishes first wins, and the loser's result is discarded. This
// is the portable equivalent of spec.md §4.7's kernel-level absolute
// deadline for engines whose Go bindings don't expose linked-timeout SQEs.
func (c *TCPConnection) RecvDeadline(buf []byte, deadline time.Time, cb ioqueue.HandlerEcRes) {
	engineRecvDeadline(c.engine, c.fd, buf, deadline, cb)
}

// engineRecvDeadline races an engine's recv against Engine.Timeout;
// whichever finishes first wins, and the loser's result is discarded.
// This is the portable equivalent of spec.md §4.7's kernel-level absolute
// deadline for engines whose Go bindings don't expose linked-timeout SQEs.
// Shared by TCPConnection and UnixConnection, since both drive a plain fd
// through the same Engine. Both branches of the race are delivered through
// the engine's own single dispatch loop (Engine.Timeout, not a bare
// time.AfterFunc goroutine), so the two callbacks below never run
// concurrently with each other or with anything else touching session
// state — a plain bool is enough to pick the winner, no atomic needed.
func engineRecvDeadline(engine ioqueue.Engine, fd int, buf []byte, deadline time.Time, cb ioqueue.HandlerEcRes) {
	var fired bool
	cancelTimeout := engine.Timeout(time.Until(deadline), func(error) {
		if fired {
			return
		}
		fired = true
		cb(httperr.NewTransportError(httperr.TransportErrorCanceled, "recv canceled: full-read timeout", nil), 0)
	})
	engine.Recv(fd, buf, func(err error, n int) {
		if fired {
			return
		}
		fired = true
		cancelTimeout()
		cb(err, n)
	})
}

func (c *TCPConnection) Send(buf []byte, cb ioqueue.HandlerEcRes) {
	c.engine.Send(c.fd, buf, cb)
}

func (c *TCPConnection) Shutdown(cb ioqueue.HandlerEc) {
	c.engine.Shutdown(c.fd, cb)
}

func (c *TCPConnection) Close(cb ioqueue.HandlerEc) {
	c.engine.Close(c.fd, cb)
}

// Fd exposes the raw descriptor for transports that need to layer on top
// (TLS).
func (c *TCPConnection) Fd() int { return c.fd }

// CreateTCPListenSocket builds and binds a non-blocking IPv4 listen
// socket, mirroring original_source/src/server.hpp's
// createTcpListenSocket.
func CreateTCPListenSocket(listenPort uint16, listenAddr uint32, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "socket failed", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "setsockopt SO_REUSEADDR failed", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "set non-blocking failed", err)
	}

	sa := &unix.SockaddrInet4{Port: int(listenPort)}
	be := uint32ToBigEndianBytes(listenAddr)
	copy(sa.Addr[:], be[:])

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "bind failed", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "listen failed", err)
	}
	return fd, nil
}

// CreateTCPSocket builds a non-blocking client-side IPv4 TCP socket fd,
// the counterpart of CreateTCPListenSocket used by client.hpp's connect().
// The actual connect(2) is submitted through an Engine so the completion
// still arrives on the single dispatch loop.
func CreateTCPSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "socket failed", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "set non-blocking failed", err)
	}
	return fd, nil
}

// PeerAddr renders fd's remote address the way the original server's
// handleAccept rendered acceptAddr_ via inet_ntoa, re-derived with
// getpeername(2) since the Engine abstraction only hands back the fd.
func PeerAddr(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return "unknown"
	}
	return SockaddrToRemoteAddr(sa)
}

func uint32ToBigEndianBytes(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// SockaddrToRemoteAddr renders an accepted peer address the way
// original_source used inet_ntoa in handleAccept's access logging.
func SockaddrToRemoteAddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
		return ip.String()
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return ip.String()
	default:
		return "unknown"
	}
}
