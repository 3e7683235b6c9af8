// Package slog is a small leveled logger in the style of the original
// htcpp project's slog facility: severity-gated, timestamp-prefixed lines,
// plus a dedicated access-log helper. It deliberately stays on the standard
// library — see DESIGN.md for why no third-party logger from the retrieval
// pack was pulled in.
package slog

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Severity orders log levels; lower values are more verbose.
type Severity int32

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "INVALID"
	}
}

var (
	currentLevel atomic.Int32
	output       atomic.Value // io.Writer
)

func init() {
	currentLevel.Store(int32(Info))
	output.Store(io.Writer(os.Stdout))
}

// SetLevel changes the minimum severity that gets written out.
func SetLevel(s Severity) {
	currentLevel.Store(int32(s))
}

// SetOutput redirects where log lines are written; tests use this to
// capture output.
func SetOutput(w io.Writer) {
	output.Store(w)
}

func enabled(s Severity) bool {
	return int32(s) >= currentLevel.Load()
}

func writeLine(s Severity, msg string) {
	if !enabled(s) {
		return
	}
	w := output.Load().(io.Writer)
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "[%s] [%s] %s\n", ts, s, msg)
}

func Debugf(format string, args ...any)   { writeLine(Debug, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)    { writeLine(Info, fmt.Sprintf(format, args...)) }
func Warningf(format string, args ...any) { writeLine(Warning, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any)   { writeLine(Error, fmt.Sprintf(format, args...)) }

// Fatalf logs at Fatal severity and terminates the process, matching the
// original slog::fatal behaviour of the htcpp server's listen-socket
// failure path.
func Fatalf(format string, args ...any) {
	writeLine(Fatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Access writes one access-log line in the
// `REMOTE "REQUEST-LINE" STATUS CONTENT-LENGTH` shape used by the original
// server's accessLog method, gated by the caller on the access-log config
// flag rather than on severity.
func Access(remoteAddr, requestLine string, status int, contentLength int) {
	w := output.Load().(io.Writer)
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "[%s] %s \"%s\" %d %d\n", ts, remoteAddr, requestLine, status, contentLength)
}
