package server

import (
	"testing"
	"time"

	"github.com/nczempin/htcpp-uring/config"
	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/ioqueue"
	"github.com/nczempin/htcpp-uring/metrics"
)

// fakeConn is a synchronous, in-memory transport.Connection stand-in that
// lets recv/send be scripted byte-chunk by byte-chunk, so the session
// state machine can be exercised without a real socket or io_uring ring.
type fakeConn struct {
	recvChunks [][]byte
	recvErr    error

	sendChunkSizes []int // successive prefix sizes handed back from Send
	sent           []byte

	closed   bool
	shutdown bool
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:9999" }

func (c *fakeConn) Recv(buf []byte, cb ioqueue.HandlerEcRes) {
	c.deliverRecv(buf, cb)
}

func (c *fakeConn) RecvDeadline(buf []byte, _ time.Time, cb ioqueue.HandlerEcRes) {
	c.deliverRecv(buf, cb)
}

func (c *fakeConn) deliverRecv(buf []byte, cb ioqueue.HandlerEcRes) {
	if c.recvErr != nil {
		cb(c.recvErr, 0)
		return
	}
	if len(c.recvChunks) == 0 {
		cb(nil, 0)
		return
	}
	chunk := c.recvChunks[0]
	c.recvChunks = c.recvChunks[1:]
	n := copy(buf, chunk)
	cb(nil, n)
}

func (c *fakeConn) Send(buf []byte, cb ioqueue.HandlerEcRes) {
	n := len(buf)
	if len(c.sendChunkSizes) > 0 {
		n = c.sendChunkSizes[0]
		if n > len(buf) {
			n = len(buf)
		}
		c.sendChunkSizes = c.sendChunkSizes[1:]
	}
	c.sent = append(c.sent, buf[:n]...)
	cb(nil, n)
}

func (c *fakeConn) Shutdown(cb ioqueue.HandlerEc) { c.shutdown = true; cb(nil) }
func (c *fakeConn) Close(cb ioqueue.HandlerEc)     { c.closed = true; cb(nil) }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.FullReadTimeoutMs = 5000
	cfg.MaxRequestHeaderSize = 4096
	cfg.MaxRequestBodySize = 4096
	cfg.MaxURLLength = 512
	return cfg
}

// TestSession_PartialSendSendsFullResponseInOrder exercises spec.md §8's
// partial-I/O invariant: arbitrary positive send prefixes summing to the
// buffer length must still result in exactly the buffer being sent, in
// order, before the connection is torn down.
func TestSession_PartialSendSendsFullResponseInOrder(t *testing.T) {
	conn := &fakeConn{
		recvChunks:     [][]byte{[]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n")},
		sendChunkSizes: []int{1, 3, 5},
	}
	reg := metrics.New()
	handler := func(req *httpcore.Request, responder Responder) {
		responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("hello"), "text/plain"))
	}

	s := newSession(conn, testConfig(), handler, reg, conn.RemoteAddr())
	s.start()

	resp := httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("hello"), "text/plain")
	wantBytes := resp.Serialize()

	if string(conn.sent) != string(wantBytes) {
		t.Fatalf("partial sends produced wrong bytes:\ngot:  %q\nwant: %q", conn.sent, wantBytes)
	}
	if !conn.shutdown || !conn.closed {
		t.Fatalf("expected shutdown+close after non-keep-alive response, got shutdown=%v closed=%v", conn.shutdown, conn.closed)
	}
}

// TestSession_KeepAliveServesSecondRequestOnSameConnection checks the
// keep-alive transition of spec.md §4.7: a fully sent response on a
// keep-alive connection restarts readRequest instead of shutting down.
func TestSession_KeepAliveServesSecondRequestOnSameConnection(t *testing.T) {
	conn := &fakeConn{
		recvChunks: [][]byte{
			[]byte("GET /a HTTP/1.1\r\n\r\n"),
			[]byte("GET /b HTTP/1.1\r\nConnection: close\r\n\r\n"),
		},
	}
	reg := metrics.New()
	var seen []string
	handler := func(req *httpcore.Request, responder Responder) {
		seen = append(seen, req.URL.Path)
		responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("ok"), "text/plain"))
	}

	s := newSession(conn, testConfig(), handler, reg, conn.RemoteAddr())
	s.start()

	if len(seen) != 2 || seen[0] != "/a" || seen[1] != "/b" {
		t.Fatalf("expected two dispatches for /a then /b, got %v", seen)
	}
	if !conn.shutdown || !conn.closed {
		t.Fatalf("expected the second, non-keep-alive response to shut down the connection")
	}
}

// TestSession_MalformedRequestRespondsOnceWith400 checks that a session
// which receives a parse failure sends exactly the fixed 400 response and
// tears the connection down without ever invoking the handler.
func TestSession_MalformedRequestRespondsOnceWith400(t *testing.T) {
	conn := &fakeConn{recvChunks: [][]byte{[]byte("NOT A REQUEST AT ALL\r\n\r\n")}}
	reg := metrics.New()
	called := false
	handler := func(req *httpcore.Request, responder Responder) {
		called = true
		responder.Respond(httpcore.NewResponse())
	}

	s := newSession(conn, testConfig(), handler, reg, conn.RemoteAddr())
	s.start()

	if called {
		t.Fatalf("handler must not be invoked for a malformed request")
	}
	want := "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n"
	if string(conn.sent) != want {
		t.Fatalf("got %q, want %q", conn.sent, want)
	}
	if !conn.closed {
		t.Fatalf("expected connection to be closed after the 400 response")
	}
}

// TestSession_ResponderStoredAndCalledAsynchronously checks spec.md §4.7's
// handler contract: the Responder must remain callable after the handler
// that received it has returned, with nothing sent until Respond fires.
func TestSession_ResponderStoredAndCalledAsynchronously(t *testing.T) {
	conn := &fakeConn{recvChunks: [][]byte{[]byte("GET /a HTTP/1.1\r\nConnection: close\r\n\r\n")}}
	reg := metrics.New()
	var stored Responder
	handler := func(req *httpcore.Request, responder Responder) {
		stored = responder
	}

	s := newSession(conn, testConfig(), handler, reg, conn.RemoteAddr())
	s.start()

	if len(conn.sent) != 0 {
		t.Fatalf("expected nothing sent before Respond is called, got %q", conn.sent)
	}

	stored.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("late"), "text/plain"))

	want := httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("late"), "text/plain").Serialize()
	if string(conn.sent) != string(want) {
		t.Fatalf("got %q, want %q", conn.sent, want)
	}
}

// TestSession_RespondCalledTwiceIsANoop checks spec.md §8 testable property
// 6: at-most-once respond. A second Respond call must not send anything
// further or otherwise disturb the connection.
func TestSession_RespondCalledTwiceIsANoop(t *testing.T) {
	conn := &fakeConn{recvChunks: [][]byte{[]byte("GET /a HTTP/1.1\r\nConnection: close\r\n\r\n")}}
	reg := metrics.New()
	handler := func(req *httpcore.Request, responder Responder) {
		responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("first"), "text/plain"))
		responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("second"), "text/plain"))
	}

	s := newSession(conn, testConfig(), handler, reg, conn.RemoteAddr())
	s.start()

	want := httpcore.NewResponseWithBody(httpcore.StatusOK, []byte("first"), "text/plain").Serialize()
	if string(conn.sent) != string(want) {
		t.Fatalf("second Respond call must be ignored; got %q, want %q", conn.sent, want)
	}
}
