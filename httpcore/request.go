package httpcore

import (
	"strconv"
	"strings"
)

// Request is the parsed form of an HTTP/1.1 (or 1.0) request. RequestLine,
// Version and Headers borrow from the buffer passed to ParseRequest; Body
// either borrows from that same buffer or from a separately managed body
// buffer (see server.Session). Callers must not retain a Request beyond
// the lifetime of that buffer.
type Request struct {
	RequestLine string // for access logging
	Method      Method
	URL         Url
	Version     string
	Headers     HeaderMap
	Body        string
}

// ParseRequest parses the accumulated header buffer per spec.md §4.2. On
// success it also reports the byte offset at which the header block ends
// (the start of whatever body bytes happen to already be present in buf).
func ParseRequest(buf string, maxURLLength int) (Request, int, bool) {
	var req Request

	lineEnd := strings.Index(buf, "\r\n")
	if lineEnd < 0 {
		return Request{}, 0, false
	}
	requestLine := buf[:lineEnd]
	req.RequestLine = requestLine

	methodDelim := strings.IndexByte(requestLine, ' ')
	if methodDelim < 0 {
		return Request{}, 0, false
	}
	method, ok := ParseMethod(requestLine[:methodDelim])
	if !ok {
		return Request{}, 0, false
	}
	req.Method = method

	urlStart := methodDelim + 1
	if urlStart >= len(requestLine) {
		return Request{}, 0, false
	}

	searchSpace := requestLine[urlStart:]
	if maxURLLength > 0 && maxURLLength < len(searchSpace) {
		searchSpace = searchSpace[:maxURLLength]
	}
	urlLen := strings.IndexByte(searchSpace, ' ')
	if urlLen < 0 {
		// Either the cap was hit without a second SP, or there genuinely
		// is no second SP (the RFC2616 §5.1 single-SP-delimiter design
		// choice). Both are a parse failure the session maps to 400; a
		// production server would map the capped case to 414 instead.
		return Request{}, 0, false
	}

	url, ok := ParseURL(requestLine[urlStart : urlStart+urlLen])
	if !ok {
		return Request{}, 0, false
	}
	req.URL = url

	versionStart := urlStart + urlLen + 1
	if versionStart > len(requestLine) {
		return Request{}, 0, false
	}
	version := requestLine[versionStart:]
	if !isValidVersion(version) {
		return Request{}, 0, false
	}
	req.Version = version

	lineStart := lineEnd + 2
	for lineStart < len(buf) {
		nextLineEnd := strings.Index(buf[lineStart:], "\r\n")
		if nextLineEnd < 0 {
			return Request{}, 0, false
		}
		nextLineEnd += lineStart

		if lineStart == nextLineEnd {
			lineStart += 2
			break
		}

		line := buf[lineStart:nextLineEnd]
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return Request{}, 0, false
		}
		name := line[:colon]
		value := trimLWS(line[colon+1:])
		req.Headers.Add(name, value)

		lineStart = nextLineEnd + 2
	}

	req.Body = buf[lineStart:]
	return req, lineStart, true
}

func isValidVersion(v string) bool {
	return v == "HTTP/1.0" || v == "HTTP/1.1"
}

// ContentLength looks up and validates the Content-Length header. It
// returns (length, present, valid).
func (r *Request) ContentLength() (uint64, bool, bool) {
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

// KeepAlive implements the pure decision function of spec.md §4.7: if the
// Connection header contains "close", false; else if it contains
// "keep-alive", true; else true iff the version is HTTP/1.1.
func (r *Request) KeepAlive() bool {
	if conn, ok := r.Headers.Get("Connection"); ok {
		lower := strings.ToLower(conn)
		if strings.Contains(lower, "close") {
			return false
		}
		if strings.Contains(lower, "keep-alive") {
			return true
		}
	}
	return r.Version == "HTTP/1.1"
}
