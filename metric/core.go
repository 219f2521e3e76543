// Package metric provides Prometheus instrumentation for the chat client:
// a private registry with the core chat metrics, registration helpers for
// caller-defined metrics, and an HTTP server exposing /metrics.
package metric

import "github.com/prometheus/client_golang/prometheus"

const namespace = "twitchobserver"

// Metrics contains the core client metrics.
type Metrics struct {
	// Inbound traffic
	EventsReceived   *prometheus.CounterVec // by command kind
	MalformedLines   prometheus.Counter
	EventsDispatched prometheus.Counter
	SubscriberErrors prometheus.Counter
	PingsAnswered    prometheus.Counter

	// Outbound traffic
	LinesSent *prometheus.CounterVec // by command kind

	// Lifecycle
	ConnectionState prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected
	ConnectAttempts prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all core metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total decoded events by command kind",
			},
			[]string{"command"},
		),

		MalformedLines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "malformed_total",
				Help:      "Total lines that matched no known grammar",
			},
		),

		EventsDispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "dispatched_total",
				Help:      "Total subscriber callback invocations",
			},
		),

		SubscriberErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "subscriber_errors_total",
				Help:      "Total subscriber callbacks that panicked",
			},
		),

		PingsAnswered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keepalive",
				Name:      "pongs_total",
				Help:      "Total automatic PONG replies",
			},
		),

		LinesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "lines_sent_total",
				Help:      "Total lines written by command kind",
			},
			[]string{"command"},
		),

		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=connected)",
			},
		),

		ConnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "attempts_total",
				Help:      "Total connection attempts",
			},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Events currently buffered in the event queue",
			},
		),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsReceived,
		m.MalformedLines,
		m.EventsDispatched,
		m.SubscriberErrors,
		m.PingsAnswered,
		m.LinesSent,
		m.ConnectionState,
		m.ConnectAttempts,
		m.QueueDepth,
	}
}
