// Package natsbridge republishes chat events onto NATS subjects so other
// processes can consume chat traffic without speaking the chat protocol
// themselves. The bridge is a plain subscriber: wire it with
// Observer.Subscribe and every event fans out as JSON.
package natsbridge

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/joshuaskelly/twitch-observer/engine"
	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/event"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[BRIDGE] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[BRIDGE ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {}

// Bridge forwards chat events to NATS.
type Bridge struct {
	url           string
	subjectPrefix string
	clientName    string
	timeout       time.Duration
	drainTimeout  time.Duration
	logger        Logger

	conn *nats.Conn
}

// Option is a functional option for configuring the Bridge
type Option func(*Bridge) error

// WithSubjectPrefix sets the subject prefix (default "chat.events").
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) error {
		if prefix == "" {
			return errors.WrapInvalid(
				errors.New("subject prefix cannot be empty"),
				"Bridge", "WithSubjectPrefix", "validate prefix")
		}
		b.subjectPrefix = prefix
		return nil
	}
}

// WithClientName sets the NATS connection name.
func WithClientName(name string) Option {
	return func(b *Bridge) error {
		b.clientName = name
		return nil
	}
}

// WithTimeout sets the NATS connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) error {
		b.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger for the bridge
func WithLogger(logger Logger) Option {
	return func(b *Bridge) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		b.logger = logger
		return nil
	}
}

// New creates a bridge targeting the NATS server at url.
func New(url string, opts ...Option) (*Bridge, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	b := &Bridge{
		url:           url,
		subjectPrefix: "chat.events",
		clientName:    "twitch-observer-bridge",
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
		logger:        &defaultLogger{},
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, errors.WrapInvalid(err, "Bridge", "New", "apply option")
		}
	}
	return b, nil
}

// Connect establishes the NATS connection.
func (b *Bridge) Connect() error {
	conn, err := nats.Connect(b.url,
		nats.Name(b.clientName),
		nats.Timeout(b.timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Errorf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Printf("nats reconnected")
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "Connect", "connect to "+b.url)
	}

	b.conn = conn
	b.logger.Debugf("connected to %s", b.url)
	return nil
}

// envelope is the JSON shape published per event.
type envelope struct {
	Command    string            `json:"command,omitempty"`
	Nickname   string            `json:"nickname,omitempty"`
	Channel    string            `json:"channel,omitempty"`
	Message    string            `json:"message,omitempty"`
	Mode       string            `json:"mode,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Raw        string            `json:"raw"`
	Malformed  bool              `json:"malformed,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Subscriber returns the callback to register with the observer. Publish
// failures are logged, never propagated: the bridge must not disturb event
// delivery to other subscribers.
func (b *Bridge) Subscriber() engine.Callback {
	return func(ev event.Event) {
		if b.conn == nil {
			return
		}

		env := envelope{Raw: ev.RawLine(), ReceivedAt: time.Now().UTC()}
		subject := b.subjectPrefix + ".malformed"

		if chat, ok := ev.(event.ChatEvent); ok {
			env.Command = string(chat.Command)
			env.Nickname = chat.Nickname
			env.Channel = chat.Channel
			env.Message = chat.Message
			env.Mode = chat.Mode
			env.Tags = chat.Tags
			subject = b.subjectPrefix + "." + strings.ToLower(string(chat.Command))
		} else {
			env.Malformed = true
		}

		payload, err := json.Marshal(env)
		if err != nil {
			b.logger.Errorf("marshal event: %v", err)
			return
		}
		if err := b.conn.Publish(subject, payload); err != nil {
			b.logger.Errorf("publish to %s: %v", subject, err)
		}
	}
}

// Close flushes pending publishes and closes the connection.
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}

	if err := b.conn.FlushTimeout(b.drainTimeout); err != nil {
		b.logger.Errorf("flush: %v", err)
	}
	b.conn.Close()
	b.conn = nil
	return nil
}
