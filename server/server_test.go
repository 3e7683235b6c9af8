package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nczempin/htcpp-uring/config"
	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/ioqueue"
	"github.com/nczempin/htcpp-uring/metrics"
	"github.com/nczempin/htcpp-uring/transport"
)

func echoHandler(req *httpcore.Request, responder Responder) {
	responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, []byte(req.URL.Path), ""))
}

func TestServer_HandlesOneRequestThenCloses(t *testing.T) {
	engine, err := ioqueue.NewUringEngine(64)
	if err != nil {
		t.Fatalf("failed to create uring engine: %v", err)
	}

	cfg := config.Default()
	cfg.ListenPort = 0 // overwritten below once we know a free port
	cfg.ListenAddress = 0x7F000001 // 127.0.0.1, host byte order

	freePort, err := freeTCPPort()
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	cfg.ListenPort = freePort

	reg := metrics.New()
	srv, err := New(engine, transport.TCPFactory{}, cfg, reg, echoHandler)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go srv.Start()
	t.Cleanup(srv.Stop)

	conn, err := dialWithRetry(fmt.Sprintf("127.0.0.1:%d", freePort), 2*time.Second)
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("GET /hello HTTP/1.1\r\nConnection: close\r\n\r\n"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	got := string(buf[:n])
	if !contains(got, "200") {
		t.Errorf("response missing 200 status: %q", got)
	}
	if !contains(got, "/hello") {
		t.Errorf("response missing echoed path: %q", got)
	}

	if _, err := conn.Read(buf); err != io.EOF {
		t.Errorf("expected the server to close the connection after a Connection: close request, got err = %v", err)
	}
}

func freeTCPPort() (uint16, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return uint16(l.Addr().(*net.TCPAddr).Port), nil
}

func dialWithRetry(addr string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return nil, lastErr
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
