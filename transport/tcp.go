package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/joshuaskelly/twitch-observer/errors"
)

// Default endpoints for the chat service.
const (
	DefaultTCPAddr    = "irc.chat.twitch.tv:6667"
	DefaultTCPTLSAddr = "irc.chat.twitch.tv:6697"
)

// TCP is a line transport over a TCP socket, optionally wrapped in TLS.
type TCP struct {
	addr        string
	useTLS      bool
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	logger      Logger

	mu     sync.Mutex // guards conn lifecycle and writes
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// TCPOption is a functional option for configuring the TCP transport.
type TCPOption func(*TCP)

// WithTLS enables TLS with the given config (nil uses sane defaults).
func WithTLS(cfg *tls.Config) TCPOption {
	return func(t *TCP) {
		t.useTLS = true
		t.tlsConfig = cfg
	}
}

// WithDialTimeout sets the connect timeout.
func WithDialTimeout(d time.Duration) TCPOption {
	return func(t *TCP) {
		t.dialTimeout = d
	}
}

// WithTCPLogger sets a custom logger for the transport.
func WithTCPLogger(logger Logger) TCPOption {
	return func(t *TCP) {
		if logger == nil {
			logger = nopLogger{}
		}
		t.logger = logger
	}
}

// NewTCP creates a TCP transport to addr ("host:port"). An empty addr uses
// the service default for the chosen TLS mode.
func NewTCP(addr string, opts ...TCPOption) *TCP {
	t := &TCP{
		addr:        addr,
		dialTimeout: 10 * time.Second,
		logger:      nopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.addr == "" {
		if t.useTLS {
			t.addr = DefaultTCPTLSAddr
		} else {
			t.addr = DefaultTCPAddr
		}
	}
	return t
}

// Connect dials the service.
func (t *TCP) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "TCP", "Connect", "dial")
	}
	if t.closed {
		return errors.WrapInvalid(errors.ErrShuttingDown, "TCP", "Connect", "dial")
	}

	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return errors.WrapTransient(err, "TCP", "Connect", "dial "+t.addr)
	}

	if t.useTLS {
		cfg := t.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			if host, _, splitErr := net.SplitHostPort(t.addr); splitErr == nil {
				cfg.ServerName = host
			}
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return errors.WrapTransient(err, "TCP", "Connect", "tls handshake")
		}
		conn = tlsConn
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.logger.Debugf("connected to %s (tls=%v)", t.addr, t.useTLS)
	return nil
}

// ReadLine blocks until the next terminator-delimited line arrives.
func (t *TCP) ReadLine() (string, error) {
	t.mu.Lock()
	reader := t.reader
	t.mu.Unlock()
	if reader == nil {
		return "", errors.ErrTransportNotConnected
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		if line == "" {
			return "", errors.WrapTransient(err, "TCP", "ReadLine", "read")
		}
		// A final unterminated fragment before EOF is still a line.
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes one already-terminated line to the socket.
func (t *TCP) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.ErrTransportNotConnected
	}
	if _, err := t.conn.Write([]byte(line)); err != nil {
		return errors.WrapTransient(err, "TCP", "WriteLine", "write")
	}
	return nil
}

// Close shuts the socket down, unblocking a pending ReadLine.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	if err != nil {
		return errors.Wrap(err, "TCP", "Close", "close connection")
	}
	return nil
}
