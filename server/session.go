package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/dchest/uniuri"

	"github.com/nczempin/htcpp-uring/config"
	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/httperr"
	"github.com/nczempin/htcpp-uring/internal/slog"
	"github.com/nczempin/htcpp-uring/metrics"
	"github.com/nczempin/htcpp-uring/transport"
)

// Responder is the type-erased response sink spec.md §2/§9 calls out as
// its own named component ("Responder indirection"): a capability set of
// exactly one operation, bound to the session that produced the Request
// it answers. A handler may call Respond synchronously or stash the
// Responder and call it later from another goroutine or callback; either
// way Respond must be called exactly once (spec.md §4.7, §6, §8 property
// 6) — a second call is a no-op rather than a panic, matching the
// "programming error" framing of the contract rather than treating it as
// fatal to the process.
type Responder interface {
	Respond(httpcore.Response)
}

// Respond implements Responder. Holding a Responder keeps the session
// alive past the handler call that received it, per spec.md §3's
// ownership note that "the Responder handed to user code is a shared
// reference to the Session" — there is no separate owner releasing the
// session early out from under a handler that stores it.
func (s *session) Respond(resp httpcore.Response) {
	if s.responded {
		slog.Errorf("[%s] Respond called more than once, ignoring", s.id)
		return
	}
	s.responded = true

	keepAlive := s.request.KeepAlive()
	if keepAlive {
		// Responses default to Connection: close; announce the reuse instead.
		var headers httpcore.HeaderMap
		for _, f := range resp.Headers.Entries() {
			if !strings.EqualFold(f.Name, "Connection") {
				headers.Add(f.Name, f.Value)
			}
		}
		headers.Add("Connection", "keep-alive")
		resp.Headers = headers
	}

	s.response = resp
	s.accessLog(s.request.RequestLine, resp.Status, len(resp.Body))
	s.respondRaw(resp.Serialize(), keepAlive)
}

// session is a self-owning per-connection state machine, the Go analogue
// of server.hpp's Session<Connection>: there is no external owner
// keeping it alive, each pending I/O callback captures the *session value
// directly (the GC equivalent of shared_from_this), and the session frees
// itself by simply letting go of that last callback once the connection
// is closed.
type session struct {
	conn    transport.Connection
	cfg     config.Config
	handler Handler
	metrics *metrics.Registry

	id         string
	remoteAddr string

	headerBuffer    []byte
	bodyBuffer      []byte
	responseBuf     []byte
	sendOffset      int
	sendKeepAlive   bool
	headerBytesRead int
	reportedStatus  int
	responded       bool

	request       httpcore.Request
	requestMethod string
	requestPath   string
	response      httpcore.Response

	requestStart   time.Time
	readDeadline   time.Time
	doneInProgress func()
}

func newSession(conn transport.Connection, cfg config.Config, handler Handler, reg *metrics.Registry, remoteAddr string) *session {
	return &session{
		id:           uniuri.New(),
		conn:         conn,
		cfg:          cfg,
		handler:      handler,
		metrics:      reg,
		remoteAddr:   remoteAddr,
		headerBuffer: make([]byte, cfg.MaxRequestHeaderSize),
	}
}

// start (re)begins the request/response cycle on this connection. It is
// called once for the initial request and again for every subsequent
// pipelined-free keep-alive request, exactly like Session::start in
// server.hpp.
func (s *session) start() {
	s.requestStart = time.Now()
	s.responded = false
	s.doneInProgress = s.metrics.TrackInProgress()
	s.readRequest()
}

func (s *session) accessLog(requestLine string, status int, contentLength int) {
	if s.cfg.AccessLog {
		slog.Access(s.remoteAddr, requestLine, status, contentLength)
	}
}

func (s *session) readRequest() {
	s.headerBuffer = s.headerBuffer[:cap(s.headerBuffer)]
	s.bodyBuffer = s.bodyBuffer[:0]

	s.readDeadline = time.Now().Add(time.Duration(s.cfg.FullReadTimeoutMs) * time.Millisecond)
	s.conn.RecvDeadline(s.headerBuffer, s.readDeadline, func(err error, n int) {
		if err != nil {
			s.metrics.RecvError(err.Error())
			slog.Errorf("[%s] error in recv (headers): %v", s.id, err)
			if httperr.IsCanceled(err) {
				s.shutdownConn()
				return
			}
			s.closeConn()
			return
		}
		if n == 0 {
			s.closeConn()
			return
		}

		s.headerBytesRead = n
		raw := string(s.headerBuffer[:n])
		req, _, ok := httpcore.ParseRequest(raw, s.cfg.MaxURLLength)
		if !ok {
			s.accessLog("INVALID REQUEST", httpcore.StatusBadRequest, 0)
			s.metrics.RequestError("parse error")
			s.respondFixed(httpcore.StatusBadRequest, badRequestResponse())
			return
		}
		s.request = req
		s.requestMethod = req.Method.String()
		s.requestPath = req.URL.Path

		// req.Body already holds whatever body bytes arrived in the same
		// recv as the headers, per ParseRequest's leftover slice.
		leftover := req.Body

		length, hasLength, lengthOk := req.ContentLength()
		if hasLength && !lengthOk {
			s.accessLog("INVALID REQUEST (Content-Length)", httpcore.StatusBadRequest, 0)
			s.metrics.RequestError("invalid length")
			s.respondFixed(httpcore.StatusBadRequest, badRequestResponse())
			return
		}
		if !hasLength {
			s.processRequest()
			return
		}
		if length > uint64(s.cfg.MaxRequestBodySize) {
			s.accessLog("INVALID REQUEST (body size)", httpcore.StatusBadRequest, 0)
			s.metrics.RequestError("body too large")
			s.respondFixed(httpcore.StatusBadRequest, badRequestResponse())
			return
		}
		if uint64(len(leftover)) >= length {
			s.request.Body = leftover[:length]
			s.processRequest()
			return
		}
		s.bodyBuffer = append(s.bodyBuffer[:0], leftover...)
		s.readRequestBody(length)
	})
}

func (s *session) readRequestBody(contentLength uint64) {
	sizeBeforeRead := len(s.bodyBuffer)
	recvLen := contentLength - uint64(sizeBeforeRead)
	buf := make([]byte, recvLen)

	s.conn.RecvDeadline(buf, s.readDeadline, func(err error, n int) {
		if err != nil {
			s.metrics.RecvError(err.Error())
			slog.Errorf("[%s] error in recv (body): %v", s.id, err)
			if httperr.IsCanceled(err) {
				s.shutdownConn()
				return
			}
			s.closeConn()
			return
		}
		if n == 0 {
			s.closeConn()
			return
		}

		s.bodyBuffer = append(s.bodyBuffer, buf[:n]...)
		if uint64(len(s.bodyBuffer)) < contentLength {
			s.readRequestBody(contentLength)
			return
		}
		s.request.Body = string(s.bodyBuffer)
		s.processRequest()
	})
}

func (s *session) processRequest() {
	s.metrics.RequestReceived(s.requestMethod, s.requestPath, s.headerBytesRead, len(s.bodyBuffer))
	s.handler(&s.request, s)
}

func (s *session) respondRaw(raw []byte, keepAlive bool) {
	s.sendResponse(s.response.Status, raw, keepAlive)
}

// respondFixed sends a response the session built itself rather than one
// produced by the handler (the fixed 400 responses), so the duration/
// response-sent metrics still report the status actually sent on the wire
// instead of whatever s.response happened to hold last. These are always
// followed by a close, never a keep-alive reuse of the connection.
func (s *session) respondFixed(status int, raw []byte) {
	s.responded = true
	s.sendResponse(status, raw, false)
}

func (s *session) sendResponse(status int, raw []byte, keepAlive bool) {
	s.reportedStatus = status
	s.responseBuf = raw
	s.sendOffset = 0
	s.sendKeepAlive = keepAlive
	s.sendMore()
}

// sendMore issues one send SQE from the current offset and, on a partial
// write, re-issues from the advanced offset — spec.md §4.7's "Sending |
// partial send | Sending | advance offset; re-issue send" transition.
func (s *session) sendMore() {
	size := len(s.responseBuf)
	s.conn.Send(s.responseBuf[s.sendOffset:], func(err error, sentBytes int) {
		if err != nil {
			s.metrics.SendError(err.Error())
			slog.Errorf("[%s] error in send: %v", s.id, err)
			s.closeConn()
			return
		}
		if sentBytes == 0 {
			s.closeConn()
			return
		}

		s.sendOffset += sentBytes
		if s.sendOffset < size {
			s.sendMore()
			return
		}

		elapsed := time.Since(s.requestStart).Seconds()
		status := fmt.Sprintf("%d", s.reportedStatus)
		s.metrics.RequestDuration(s.requestMethod, s.requestPath, elapsed)
		s.metrics.ResponseSent(s.requestMethod, s.requestPath, status, size)

		if s.sendKeepAlive {
			s.finishInProgress()
			s.start()
		} else {
			s.shutdownConn()
		}
	})
}

// shutdownConn performs the half-close before the final close, giving TLS
// connections a chance to run their close-notify exchange first (spec.md
// §4.5's distinction between shutdown and close).
func (s *session) shutdownConn() {
	s.conn.Shutdown(func(err error) {
		if err != nil {
			slog.Errorf("[%s] error in shutdown: %v", s.id, err)
		}
		// No way to recover from a shutdown error either way; close
		// unconditionally, same as server.hpp's Session::shutdown.
		s.closeConn()
	})
}

func (s *session) closeConn() {
	s.finishInProgress()
	s.conn.Close(func(error) {})
}

func (s *session) finishInProgress() {
	if s.doneInProgress != nil {
		s.doneInProgress()
		s.doneInProgress = nil
	}
}

func badRequestResponse() []byte {
	return []byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n")
}
