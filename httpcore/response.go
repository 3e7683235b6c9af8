package httpcore

import (
	"strconv"
	"strings"
)

// Response is an outgoing (or client-side parsed) HTTP message. Headers
// and Body are owned; unlike Request it does not borrow from a shared
// buffer, since responses are typically constructed fresh by handlers.
type Response struct {
	Status  int
	Headers HeaderMap
	Body    []byte
}

// NewResponse builds a 200 response with no body, defaulting
// Connection: close per spec.md §3 — callers/sessions override this when
// keep-alive applies.
func NewResponse() Response {
	r := Response{Status: 200}
	r.Headers.Add("Connection", "close")
	return r
}

// NewResponseWithBody builds a response carrying body, adding
// Content-Type: text/plain unless the caller already set one.
func NewResponseWithBody(status int, body []byte, contentType string) Response {
	r := Response{Status: status, Body: body}
	r.Headers.Add("Connection", "close")
	if contentType == "" {
		contentType = "text/plain"
	}
	r.Headers.Add("Content-Type", contentType)
	return r
}

// Serialize produces the wire form: "HTTP/1.1 <code>\r\n" followed by
// headers and a blank line, per spec.md §6.
func (r *Response) Serialize() []byte {
	var sb strings.Builder
	sb.Grow(64 + r.Headers.Len()*32 + len(r.Body))
	sb.WriteString("HTTP/1.1 ")
	sb.WriteString(strconv.Itoa(r.Status))
	sb.WriteString("\r\n")
	r.Headers.Serialize(&sb)
	sb.WriteString("\r\n")
	out := make([]byte, 0, sb.Len()+len(r.Body))
	out = append(out, sb.String()...)
	out = append(out, r.Body...)
	return out
}

// ParseResponse parses a status line, headers, and the body prefix
// already present in buf, per spec.md §4.3. It returns the byte offset at
// which the header block ends, symmetric to ParseRequest.
func ParseResponse(buf string) (Response, int, bool) {
	var resp Response

	lineEnd := strings.Index(buf, "\r\n")
	if lineEnd < 0 {
		return Response{}, 0, false
	}
	statusLine := buf[:lineEnd]

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return Response{}, 0, false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Response{}, 0, false
	}
	resp.Status = code

	lineStart := lineEnd + 2
	for lineStart < len(buf) {
		nextLineEnd := strings.Index(buf[lineStart:], "\r\n")
		if nextLineEnd < 0 {
			return Response{}, 0, false
		}
		nextLineEnd += lineStart

		if lineStart == nextLineEnd {
			lineStart += 2
			break
		}

		line := buf[lineStart:nextLineEnd]
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return Response{}, 0, false
		}
		name := line[:colon]
		value := trimLWS(line[colon+1:])
		resp.Headers.Add(name, value)

		lineStart = nextLineEnd + 2
	}

	resp.Body = []byte(buf[lineStart:])
	return resp, lineStart, true
}

// ContentLength looks up and validates the Content-Length header. It
// returns (length, present, valid).
func (r *Response) ContentLength() (uint64, bool, bool) {
	v, ok := r.Headers.Get("Content-Length")
	if !ok {
		return 0, false, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, true, false
	}
	return n, true, true
}
