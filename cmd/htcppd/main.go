// Command htcppd wires the config, metrics, ioqueue engine, acceptor and
// a small built-in handler together into a runnable server, mirroring
// original_source/src/main.cpp / htcpp.cpp's startup sequence. Anything
// beyond this wiring (routing DSL, file serving, inotify-driven cert
// reload) is the external-collaborator territory spec.md §1 calls out of
// scope for the core.
package main

import (
	"flag"
	"fmt"

	"github.com/nczempin/htcpp-uring/config"
	"github.com/nczempin/htcpp-uring/httpcore"
	"github.com/nczempin/htcpp-uring/internal/slog"
	"github.com/nczempin/htcpp-uring/ioqueue"
	"github.com/nczempin/htcpp-uring/metrics"
	"github.com/nczempin/htcpp-uring/server"
	"github.com/nczempin/htcpp-uring/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (optional)")
	useV2 := flag.Bool("v2", false, "use the godzie44/go-uring engine instead of iceber/iouring-go")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Fatalf("failed to load config: %v", err)
	}
	if cfg.DebugLogging {
		slog.SetLevel(slog.Debug)
	}

	engine, err := newEngine(cfg, *useV2)
	if err != nil {
		slog.Fatalf("failed to initialize io_uring engine: %v", err)
	}

	reg := metrics.New()

	factory, err := newFactory(cfg)
	if err != nil {
		slog.Fatalf("failed to initialize connection factory: %v", err)
	}

	srv, err := server.New(engine, factory, cfg, reg, echoHandler)
	if err != nil {
		slog.Fatalf("failed to create listen socket: %v", err)
	}

	slog.Infof("htcppd listening on :%d (tls=%v)", cfg.ListenPort, cfg.UseTLS)
	srv.Start()
}

func newEngine(cfg config.Config, useV2 bool) (ioqueue.Engine, error) {
	depth := uint32(cfg.IoQueueSize)
	if depth == 0 {
		depth = 2048
	}
	if useV2 {
		return ioqueue.NewUringEngine(depth)
	}
	return ioqueue.NewIouringEngine(depth)
}

func newFactory(cfg config.Config) (transport.Factory, error) {
	if !cfg.UseTLS {
		return transport.TCPFactory{}, nil
	}
	return transport.NewTLSFactory(cfg.TLSCertFile, cfg.TLSKeyFile)
}

// echoHandler is the default handler wired into htcppd: it reports the
// request method and path, the Go analogue of htcpp.cpp's demo route
// table before a real router is plugged in. It responds synchronously,
// but nothing about server.Responder requires that.
func echoHandler(req *httpcore.Request, responder server.Responder) {
	body := []byte(fmt.Sprintf("%s %s\n", req.Method.String(), req.URL.Path))
	responder.Respond(httpcore.NewResponseWithBody(httpcore.StatusOK, body, "text/plain"))
}
