package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaskelly/twitch-observer/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	require.NotNil(t, registry.CoreMetrics())
	require.NotNil(t, registry.PrometheusRegistry())

	// Core metrics are gatherable out of the box
	registry.CoreMetrics().MalformedLines.Inc()
	registry.CoreMetrics().EventsReceived.WithLabelValues("PRIVMSG").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["twitchobserver_events_malformed_total"])
	assert.True(t, names["twitchobserver_events_received_total"])
}

func TestRegister_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter_total",
		Help: "test counter",
	})
	require.NoError(t, registry.Register("app", "custom", counter))

	err := registry.Register("app", "custom", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter_total",
		Help: "test counter",
	})
	require.NoError(t, registry.Register("app", "custom", counter))

	assert.True(t, registry.Unregister("app", "custom"))
	assert.False(t, registry.Unregister("app", "custom"))

	// Re-registration after unregister is allowed
	require.NoError(t, registry.Register("app", "custom", counter))
}
