package client

import (
	"strconv"
	"strings"
	"time"

	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/httperr"
	"github.com/nczempin/htcpp-uring/ioqueue"
)

// Request is the free-function entry point of client.hpp's request(),
// parsing urlStr and picking a plain or TLS Session based on its scheme.
func Request(engine ioqueue.Engine, method httpcore.Method, urlStr string, headers httpcore.HeaderMap, body []byte, timeout time.Duration, cb Callback) {
	useTLS, host, port, target, ok := splitAbsoluteURL(urlStr)
	if !ok {
		cb(httperr.NewInvalidArgumentError("invalid scheme in request url"), httpcore.Response{})
		return
	}

	session := NewSession(engine, host, port, useTLS, timeout)
	session.Request(method, target, headers, body, cb)
}

// splitAbsoluteURL extracts scheme/host/port/target from an absolute
// client-facing URL. httpcore.ParseURL (spec.md §4.1) accepts an
// absolute-URI request-target but discards its scheme and net_loc, since
// the server has no use for them — so the client, which needs them to
// know where to connect, parses them here instead of widening Url's
// invariants.
func splitAbsoluteURL(raw string) (useTLS bool, host string, port uint16, target string, ok bool) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return false, "", 0, "", false
	}

	switch scheme {
	case "http":
		useTLS = false
	case "https":
		useTLS = true
	default:
		return false, "", 0, "", false
	}

	netloc, path, hasPath := strings.Cut(rest, "/")
	if hasPath {
		target = "/" + path
	} else {
		target = "/"
	}

	host = netloc
	if h, p, found := strings.Cut(netloc, ":"); found {
		portNum, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return false, "", 0, "", false
		}
		host = h
		port = uint16(portNum)
	}
	if host == "" {
		return false, "", 0, "", false
	}
	return useTLS, host, port, target, true
}
