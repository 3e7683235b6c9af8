package client

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/ioqueue"
)

// setupTestServer mirrors the teacher's own client test helper: a plain
// net.Listen server on loopback playing the remote peer, so the session
// under test is the only thing driven through the real io_uring engine.
func setupTestServer(t *testing.T, handler func(net.Conn)) (string, int, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	addr := listener.Addr().(*net.TCPAddr)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	return addr.IP.String(), addr.Port, func() { listener.Close() }
}

func newTestEngine(t *testing.T) ioqueue.Engine {
	t.Helper()
	engine, err := ioqueue.NewUringEngine(64)
	if err != nil {
		t.Fatalf("failed to create uring engine: %v", err)
	}
	go engine.Run()
	t.Cleanup(engine.Stop)
	return engine
}

func TestSession_Request_GetWithContentLength(t *testing.T) {
	body := "Hello, World!"
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte(response))
	})
	defer cleanup()

	engine := newTestEngine(t)
	session := NewSession(engine, host, uint16(port), false, 2*time.Second)

	done := make(chan struct{})
	var gotErr error
	var gotResp httpcore.Response

	var headers httpcore.HeaderMap
	ok := session.Request(httpcore.Get, "/test", headers, nil, func(err error, resp httpcore.Response) {
		gotErr, gotResp = err, resp
		close(done)
	})
	if !ok {
		t.Fatal("Request returned false for a fresh session")
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	if gotErr != nil {
		t.Fatalf("request failed: %v", gotErr)
	}
	if gotResp.Status != 200 {
		t.Errorf("status = %d, want 200", gotResp.Status)
	}
	if string(gotResp.Body) != body {
		t.Errorf("body = %q, want %q", gotResp.Body, body)
	}
}

func TestSession_Request_RejectsSecondWhileInFlight(t *testing.T) {
	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	})
	defer cleanup()

	engine := newTestEngine(t)
	session := NewSession(engine, host, uint16(port), false, 2*time.Second)

	var headers httpcore.HeaderMap
	ok1 := session.Request(httpcore.Get, "/", headers, nil, func(error, httpcore.Response) {})
	if !ok1 {
		t.Fatal("first Request unexpectedly rejected")
	}
	ok2 := session.Request(httpcore.Get, "/", headers, nil, func(error, httpcore.Response) {})
	if ok2 {
		t.Fatal("second concurrent Request should have been rejected")
	}
}
