// Package transport provides line-oriented connections to the chat service.
// Two implementations are offered: a TCP transport (plain or TLS) speaking
// the classic IRC port, and a WebSocket transport for environments where
// raw TCP egress is blocked. Both deliver discrete, terminator-stripped text
// lines; the engine never sees partial lines.
package transport

import "context"

// Transport is a reliable bidirectional line stream to the chat service.
// Implementations are safe for one concurrent reader plus one concurrent
// writer, which matches the engine's threading model (the read loop reads,
// application calls write).
type Transport interface {
	// Connect establishes the connection. Valid only once per Transport
	// value; the engine creates a fresh transport per session.
	Connect(ctx context.Context) error

	// ReadLine blocks until the next line arrives and returns it without
	// its terminator. It returns an error on EOF or connection failure.
	ReadLine() (string, error)

	// WriteLine writes one line to the service. The line must already
	// carry its terminator (the codec appends it).
	WriteLine(line string) error

	// Close tears the connection down, unblocking any pending ReadLine.
	// Close is idempotent.
	Close() error
}

// Logger is the minimal logging interface transports accept. It matches the
// engine's logger so one implementation serves both.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// nopLogger discards everything; the default when no logger is injected.
type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Debugf(string, ...any) {}
