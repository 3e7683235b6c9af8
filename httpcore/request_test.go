package httpcore

import (
	"strings"
	"testing"
)

func TestParseRequest_BasicGet(t *testing.T) {
	raw := "GET /a/./b/../c HTTP/1.1\r\nHost: x\r\n\r\n"
	req, headerEnd, ok := ParseRequest(raw, 512)
	if !ok {
		t.Fatal("expected parse success")
	}
	if req.Method != Get {
		t.Errorf("Method = %v, want Get", req.Method)
	}
	if req.URL.Path != "/a/c" {
		t.Errorf("Path = %q, want /a/c", req.URL.Path)
	}
	if req.Version != "HTTP/1.1" {
		t.Errorf("Version = %q", req.Version)
	}
	if headerEnd != len(raw) {
		t.Errorf("headerEnd = %d, want %d (no body present)", headerEnd, len(raw))
	}
	host, ok := req.Headers.Get("Host")
	if !ok || host != "x" {
		t.Errorf("Host header = %q", host)
	}
}

func TestParseRequest_WithBodyAlreadyPresent(t *testing.T) {
	raw := "POST /p HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	req, headerEnd, ok := ParseRequest(raw, 512)
	if !ok {
		t.Fatal("expected parse success")
	}
	body := raw[headerEnd:]
	if body != "hello" {
		t.Errorf("body = %q, want hello", body)
	}
	length, present, valid := req.ContentLength()
	if !present || !valid || length != 5 {
		t.Errorf("ContentLength() = (%d, %v, %v)", length, present, valid)
	}
}

func TestParseRequest_StarTarget(t *testing.T) {
	raw := "OPTIONS * HTTP/1.1\r\n\r\n"
	req, _, ok := ParseRequest(raw, 512)
	if !ok {
		t.Fatal("expected parse success")
	}
	if req.Method != Options {
		t.Errorf("Method = %v, want Options", req.Method)
	}
	if req.URL.Path != "" || req.URL.FullRaw != "*" {
		t.Errorf("URL = %+v", req.URL)
	}
}

func TestParseRequest_MissingSecondSPBeyondCap(t *testing.T) {
	longPath := "/" + strings.Repeat("x", 600)
	raw := "GET " + longPath + " HTTP/1.1\r\n\r\n"
	_, _, ok := ParseRequest(raw, 512)
	if ok {
		t.Fatal("expected parse failure when second SP is beyond the URL length cap")
	}
}

func TestParseRequest_MalformedHeaderLine(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nNotAHeader\r\n\r\n"
	_, _, ok := ParseRequest(raw, 512)
	if ok {
		t.Fatal("expected parse failure on header line with no colon")
	}
}

func TestParseRequest_UnknownMethodFails(t *testing.T) {
	raw := "FROB / HTTP/1.1\r\n\r\n"
	_, _, ok := ParseRequest(raw, 512)
	if ok {
		t.Fatal("expected parse failure for unknown method")
	}
}

func TestParseRequest_HeaderValueTrimsLeadingAndTrailingLWS(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Thing: \t value with spaces \t\r\n\r\n"
	req, _, ok := ParseRequest(raw, 512)
	if !ok {
		t.Fatal("expected parse success")
	}
	v, _ := req.Headers.Get("X-Thing")
	if v != "value with spaces" {
		t.Errorf("X-Thing = %q, want %q", v, "value with spaces")
	}
}

func TestRequest_KeepAlive(t *testing.T) {
	tests := []struct {
		name    string
		version string
		conn    string
		hasConn bool
		want    bool
	}{
		{"http1.1 default", "HTTP/1.1", "", false, true},
		{"http1.0 default", "HTTP/1.0", "", false, false},
		{"http1.1 close", "HTTP/1.1", "close", true, false},
		{"http1.0 keep-alive", "HTTP/1.0", "keep-alive", true, true},
		{"http1.1 close wins over keep-alive token", "HTTP/1.1", "keep-alive, close", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Request{Version: tt.version}
			if tt.hasConn {
				r.Headers.Add("Connection", tt.conn)
			}
			if got := r.KeepAlive(); got != tt.want {
				t.Errorf("KeepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRequest_RoundTrip(t *testing.T) {
	// spec.md §8 property 2: a request laid out the way client.Session
	// serializes one (request line, Host, Content-Length, body) parses back
	// into the same method, path, query and body.
	body := "payload"
	raw := "POST /x?y=1 HTTP/1.1\r\nHost: example.com\r\nContent-Length: 7\r\n\r\n" + body
	req, headerEnd, ok := ParseRequest(raw, 512)
	if !ok {
		t.Fatal("parse failed")
	}
	if req.Method != Post || req.URL.Path != "/x" || req.URL.Query != "y=1" {
		t.Fatalf("got %+v", req)
	}
	if raw[headerEnd:] != body {
		t.Fatalf("body = %q, want %q", raw[headerEnd:], body)
	}
}
