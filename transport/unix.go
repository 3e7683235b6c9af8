package transport

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/nczempin/htcpp-uring/httperr"
	"github.com/nczempin/htcpp-uring/ioqueue"
)

// UnixConnection is the Unix-domain-socket Connection, grounded on the
// teacher's transport/unix_transport.go connect/read/write/close sequence,
// adapted from net.Conn-blocking calls onto the same fd-based Engine the
// TCP and TLS connections use — a Unix socket fd supports the identical
// accept/recv/send/shutdown/close SQE set as a TCP fd.
type UnixConnection struct {
	engine     ioqueue.Engine
	fd         int
	remoteAddr string
}

// NewUnixConnection wraps an already-connected or already-accepted Unix
// domain socket fd.
func NewUnixConnection(engine ioqueue.Engine, fd int, remoteAddr string) *UnixConnection {
	return &UnixConnection{engine: engine, fd: fd, remoteAddr: remoteAddr}
}

func (c *UnixConnection) RemoteAddr() string { return c.remoteAddr }

func (c *UnixConnection) Recv(buf []byte, cb ioqueue.HandlerEcRes) {
	c.engine.Recv(c.fd, buf, cb)
}

func (c *UnixConnection) RecvDeadline(buf []byte, deadline time.Time, cb ioqueue.HandlerEcRes) {
	engineRecvDeadline(c.engine, c.fd, buf, deadline, cb)
}

func (c *UnixConnection) Send(buf []byte, cb ioqueue.HandlerEcRes) {
	c.engine.Send(c.fd, buf, cb)
}

func (c *UnixConnection) Shutdown(cb ioqueue.HandlerEc) {
	c.engine.Shutdown(c.fd, cb)
}

func (c *UnixConnection) Close(cb ioqueue.HandlerEc) {
	c.engine.Close(c.fd, cb)
}

func (c *UnixConnection) Fd() int { return c.fd }

// CreateUnixListenSocket builds and binds a non-blocking Unix domain
// listen socket at path, the Unix-socket counterpart of
// CreateTCPListenSocket. Existing stale socket files at path are removed
// first, matching the teacher's own server bring-up for Unix listeners.
func CreateUnixListenSocket(path string, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "socket failed", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "set non-blocking failed", err)
	}

	_ = unix.Unlink(path)

	sa := &unix.SockaddrUnix{Name: path}
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

// DialUnixNonblocking opens a non-blocking client-side Unix domain socket
// fd; the caller drives the actual connect through the Engine so the
// completion still arrives on the single dispatch loop rather than
// blocking net.Dial's goroutine.
func DialUnixNonblocking() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "socket failed", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, httperr.NewTransportError(httperr.TransportErrorSocketCreateFailure, "set non-blocking failed", err)
	}
	return fd, nil
}

