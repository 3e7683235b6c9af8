// Package client implements the completion-driven HTTP/1.1 client session
// of spec.md §4.8, grounded on original_source/src/client.hpp's
// ClientSession<ConnectionFactory> template.
package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/httperr"
	"github.com/nczempin/htcpp-uring/internal/slog"
	"github.com/nczempin/htcpp-uring/ioqueue"
	"github.com/nczempin/htcpp-uring/transport"
)

// Callback receives the final outcome of one request: either a non-nil
// err, or a fully-received Response.
type Callback func(err error, resp httpcore.Response)

// defaultPortForScheme mirrors client.hpp's defaultPort<Connection>
// template specializations.
func defaultPortForScheme(useTLS bool) uint16 {
	if useTLS {
		return 443
	}
	return 80
}

// Session is a single self-owning client request/response exchange: like
// server.session, every pending callback keeps it alive by capturing
// *Session directly, with no external owner or registry required.
type Session struct {
	engine  ioqueue.Engine
	host    string
	port    uint16
	useTLS  bool
	timeout time.Duration

	conn transport.Connection

	requestBuffer []byte
	sendCursor    int

	responseBuffer []byte
	cb             Callback
}

// NewSession creates a client session targeting host:port. port == 0
// selects the scheme's default port, as in client.hpp's constructor.
func NewSession(engine ioqueue.Engine, host string, port uint16, useTLS bool, timeout time.Duration) *Session {
	if port == 0 {
		port = defaultPortForScheme(useTLS)
	}
	return &Session{engine: engine, host: host, port: port, useTLS: useTLS, timeout: timeout}
}

// Request serializes and sends one request, invoking cb exactly once with
// the final outcome. Pipelining multiple in-flight requests on the same
// Session is not supported, mirroring client.hpp's single callback_ slot.
func (s *Session) Request(method httpcore.Method, target string, headers httpcore.HeaderMap, body []byte, cb Callback) bool {
	if s.cb != nil {
		return false
	}
	s.cb = cb
	s.requestBuffer = s.serializeRequest(method, target, headers, body)
	s.sendCursor = 0
	if s.conn == nil {
		s.connect()
	} else {
		s.send()
	}
	return true
}

func (s *Session) serializeRequest(method httpcore.Method, target string, headers httpcore.HeaderMap, body []byte) []byte {
	var buf []byte
	buf = append(buf, method.String()...)
	buf = append(buf, ' ')
	buf = append(buf, target...)
	buf = append(buf, " HTTP/1.1\r\n"...)
	if !headers.Contains("Host") {
		host := s.host
		if s.port != defaultPortForScheme(s.useTLS) {
			host = fmt.Sprintf("%s:%d", s.host, s.port)
		}
		buf = append(buf, "Host: "...)
		buf = append(buf, host...)
		buf = append(buf, "\r\n"...)
	}
	var sb strings.Builder
	headers.Serialize(&sb)
	buf = append(buf, sb.String()...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, body...)
	return buf
}

func (s *Session) connect() {
	resolveAddr(s.host, func(ip net.IP, err error) {
		if err != nil {
			slog.Errorf("error doing async resolve: %v", err)
			s.finish(err, httpcore.Response{})
			return
		}

		fd, err := transport.CreateTCPSocket()
		if err != nil {
			slog.Errorf("error creating socket: %v", err)
			s.finish(err, httpcore.Response{})
			return
		}

		var addr [4]byte
		copy(addr[:], ip.To4())
		sa := ioqueue.SockaddrInet4{Port: int(s.port), Addr: addr}

		s.engine.Connect(fd, sa, func(err error) {
			if err != nil {
				slog.Errorf("error connecting: %v", err)
				s.finish(err, httpcore.Response{})
				return
			}

			remoteAddr := net.JoinHostPort(ip.String(), strconv.Itoa(int(s.port)))
			if s.useTLS {
				tlsConn, err := transport.NewTLSClientConnection(s.engine, fd, remoteAddr, s.host)
				if err != nil {
					s.finish(err, httpcore.Response{})
					return
				}
				s.conn = tlsConn
			} else {
				s.conn = transport.NewTCPConnection(s.engine, fd, remoteAddr)
			}
			s.send()
		})
	})
}

func (s *Session) send() {
	s.conn.Send(s.requestBuffer[s.sendCursor:], func(err error, sentBytes int) {
		if err != nil {
			slog.Errorf("error sending request: %v", err)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}
		if sentBytes == 0 {
			err := httperr.NewTransportError(httperr.TransportErrorConnectionClosed, "0 bytes sent", nil)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}

		s.sendCursor += sentBytes
		if s.sendCursor < len(s.requestBuffer) {
			s.send()
			return
		}
		s.recvHeader()
	})
}

func (s *Session) recvHeader() {
	const recvLen = 1024
	buf := make([]byte, recvLen)
	s.recvWithDeadline(buf, func(err error, n int) {
		if err != nil {
			slog.Errorf("error in recv (headers): %v", err)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}
		if n == 0 {
			err := httperr.NewTransportError(httperr.TransportErrorConnectionClosed, "connection closed", nil)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}

		s.responseBuffer = buf[:n]

		resp, _, ok := httpcore.ParseResponse(string(s.responseBuffer))
		if !ok {
			err := httperr.NewProtocolError(httperr.ProtocolErrorInvalidStatusLine, "could not parse response")
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}

		length, hasLength, lengthOk := resp.ContentLength()
		if hasLength && !lengthOk {
			err := httperr.NewProtocolError(httperr.ProtocolErrorInvalidHeader, "invalid Content-Length")
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}
		if !hasLength || uint64(len(resp.Body)) >= length {
			if hasLength {
				resp.Body = resp.Body[:length]
			}
			s.finish(nil, resp)
			return
		}

		// The original client left "READ THE REST" as a TODO and returned
		// a truncated body; this drains the remaining bytes instead, per
		// the documented fix to that known gap.
		s.drainBody(resp, length)
	})
}

func (s *Session) drainBody(resp httpcore.Response, contentLength uint64) {
	body := append([]byte{}, resp.Body...)
	s.readMoreBody(resp, body, contentLength)
}

func (s *Session) readMoreBody(resp httpcore.Response, body []byte, contentLength uint64) {
	buf := make([]byte, contentLength-uint64(len(body)))
	s.recvWithDeadline(buf, func(err error, n int) {
		if err != nil {
			slog.Errorf("error in recv (body): %v", err)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}
		if n == 0 {
			err := httperr.NewTransportError(httperr.TransportErrorConnectionClosed, "connection closed during body", nil)
			s.finish(err, httpcore.Response{})
			s.conn.Close(func(error) {})
			return
		}

		body = append(body, buf[:n]...)
		if uint64(len(body)) < contentLength {
			s.readMoreBody(resp, body, contentLength)
			return
		}
		resp.Body = body
		s.finish(nil, resp)
	})
}

func (s *Session) recvWithDeadline(buf []byte, cb ioqueue.HandlerEcRes) {
	if s.timeout <= 0 {
		s.conn.Recv(buf, cb)
		return
	}
	s.conn.RecvDeadline(buf, time.Now().Add(s.timeout), cb)
}

func (s *Session) finish(err error, resp httpcore.Response) {
	cb := s.cb
	s.cb = nil
	if cb != nil {
		cb(err, resp)
	}
}
