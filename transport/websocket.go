package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joshuaskelly/twitch-observer/errors"
)

// Default WebSocket endpoints for the chat service.
const (
	DefaultWebSocketURL    = "ws://irc-ws.chat.twitch.tv:80"
	DefaultWebSocketTLSURL = "wss://irc-ws.chat.twitch.tv:443"
)

// WebSocket is a line transport over a WebSocket connection. The service
// may pack several protocol lines into a single WebSocket text message, so
// received messages are split on the line terminator and buffered.
type WebSocket struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logger       Logger

	mu      sync.Mutex // guards conn lifecycle and writes
	conn    *websocket.Conn
	closed  bool
	pending []string // lines received but not yet returned by ReadLine
}

// WebSocketOption is a functional option for configuring the WebSocket
// transport.
type WebSocketOption func(*WebSocket)

// WithWSDialTimeout sets the WebSocket handshake timeout.
func WithWSDialTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		w.dialTimeout = d
	}
}

// WithWSWriteTimeout sets the per-write deadline.
func WithWSWriteTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		w.writeTimeout = d
	}
}

// WithWSLogger sets a custom logger for the transport.
func WithWSLogger(logger Logger) WebSocketOption {
	return func(w *WebSocket) {
		if logger == nil {
			logger = nopLogger{}
		}
		w.logger = logger
	}
}

// NewWebSocket creates a WebSocket transport to url ("ws://..." or
// "wss://..."). An empty url uses the service's TLS endpoint.
func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		url:          url,
		dialTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       nopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.url == "" {
		w.url = DefaultWebSocketTLSURL
	}
	return w
}

// Connect performs the WebSocket handshake.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "WebSocket", "Connect", "dial")
	}
	if w.closed {
		return errors.WrapInvalid(errors.ErrShuttingDown, "WebSocket", "Connect", "dial")
	}

	dialer := &websocket.Dialer{HandshakeTimeout: w.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, w.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.WrapTransient(err, "WebSocket", "Connect", "dial "+w.url)
	}

	w.conn = conn
	w.logger.Debugf("connected to %s", w.url)
	return nil
}

// ReadLine returns the next buffered line, reading further WebSocket
// messages as needed.
func (w *WebSocket) ReadLine() (string, error) {
	for {
		w.mu.Lock()
		if len(w.pending) > 0 {
			line := w.pending[0]
			w.pending = w.pending[1:]
			w.mu.Unlock()
			return line, nil
		}
		conn := w.conn
		w.mu.Unlock()

		if conn == nil {
			return "", errors.ErrTransportNotConnected
		}

		// Blocking read happens outside the lock so Close and WriteLine
		// stay reachable.
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return "", errors.WrapTransient(err, "WebSocket", "ReadLine", "read message")
		}

		var lines []string
		for _, line := range strings.Split(string(payload), "\r\n") {
			line = strings.TrimRight(line, "\r\n")
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}

		w.mu.Lock()
		w.pending = append(w.pending, lines[1:]...)
		w.mu.Unlock()
		return lines[0], nil
	}
}

// WriteLine writes one line as a single WebSocket text message. The line
// terminator is kept; the service accepts either form.
func (w *WebSocket) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return errors.ErrTransportNotConnected
	}
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return errors.WrapTransient(err, "WebSocket", "WriteLine", "set deadline")
		}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return errors.WrapTransient(err, "WebSocket", "WriteLine", "write message")
	}
	return nil
}

// Close tears the connection down, unblocking a pending ReadLine.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		return nil
	}

	// Best-effort close frame; the server may already be gone.
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	err := w.conn.Close()
	w.conn = nil
	if err != nil {
		return errors.Wrap(err, "WebSocket", "Close", "close connection")
	}
	return nil
}
