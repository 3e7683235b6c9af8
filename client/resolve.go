package client

import (
	"context"
	"net"

	"github.com/nczempin/htcpp-uring/httperr"
)

// resolveAddr is the Go analogue of client.hpp's ClientSession::resolve,
// which wraps ::getaddrinfo in IoQueue::async (an eventfd-backed
// run-on-a-worker-thread-then-post-back-to-the-loop primitive). Go's
// net.Resolver has no Engine-native async form, so this runs it on a
// disposable goroutine and calls cb directly on that goroutine once the
// lookup finishes. Unlike the C++ NotifyHandle, the result is not posted
// back to the engine's loop: cb, and anything it calls synchronously, runs
// on the resolver goroutine.
func resolveAddr(host string, cb func(ip net.IP, err error)) {
	go func() {
		ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
		if err != nil {
			cb(nil, httperr.NewTransportError(httperr.TransportErrorDnsFailure, "getaddrinfo failed", err))
			return
		}
		if len(ips) == 0 {
			cb(nil, httperr.NewTransportError(httperr.TransportErrorDnsFailure, "empty address list", nil))
			return
		}
		// Just use the first one, matching client.hpp's resolve().
		cb(ips[0], nil)
	}()
}
