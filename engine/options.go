package engine

import (
	"log"
	"time"

	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/irc"
	"github.com/joshuaskelly/twitch-observer/metric"
	"github.com/joshuaskelly/twitch-observer/pkg/retry"
	"github.com/joshuaskelly/twitch-observer/transport"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger implements Logger using standard log package
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[OBSERVER] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[OBSERVER ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// Option is a functional option for configuring the Engine
type Option func(*Engine) error

// WithLogger sets a custom logger for the engine
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		e.logger = logger
		return nil
	}
}

// WithMetrics attaches core metrics; without this option the engine runs
// uninstrumented.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTransportFactory replaces the default TCP/TLS transport. The factory
// is called once per Start so every session gets a fresh connection.
func WithTransportFactory(factory func() transport.Transport) Option {
	return func(e *Engine) error {
		if factory == nil {
			return errors.WrapInvalid(
				errors.New("nil transport factory"),
				"Engine", "WithTransportFactory", "validate factory")
		}
		e.newTransport = factory
		return nil
	}
}

// WithDialRetry configures the bounded retry used when opening the
// transport.
func WithDialRetry(cfg retry.Config) Option {
	return func(e *Engine) error {
		e.dialRetry = cfg
		return nil
	}
}

// WithAuthTimeout bounds the wait for the first server traffic after the
// authentication lines are sent.
func WithAuthTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.WrapInvalid(
				errors.New("auth timeout must be positive"),
				"Engine", "WithAuthTimeout", "validate timeout")
		}
		e.authTimeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Stop waits for the read loop to exit.
func WithDrainTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.WrapInvalid(
				errors.New("drain timeout must be positive"),
				"Engine", "WithDrainTimeout", "validate timeout")
		}
		e.drainTimeout = d
		return nil
	}
}

// WithCapabilities overrides the capability requests sent during the
// handshake.
func WithCapabilities(caps []string) Option {
	return func(e *Engine) error {
		e.capabilities = caps
		return nil
	}
}

// WithTemplates overrides the slash-command templates for whispers and
// moderation.
func WithTemplates(t irc.Templates) Option {
	return func(e *Engine) error {
		e.templates = t
		return nil
	}
}

// WithQueueCapacity bounds the event queue; the oldest events are dropped
// on overflow. Zero keeps the queue unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(e *Engine) error {
		if capacity < 0 {
			return errors.WrapInvalid(
				errors.New("queue capacity cannot be negative"),
				"Engine", "WithQueueCapacity", "validate capacity")
		}
		e.queueCapacity = capacity
		return nil
	}
}
