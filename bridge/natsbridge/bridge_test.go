package natsbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaskelly/twitch-observer/event"
)

func TestNew_Defaults(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", b.url)
	assert.Equal(t, "chat.events", b.subjectPrefix)
	assert.Equal(t, "twitch-observer-bridge", b.clientName)
}

func TestNew_Options(t *testing.T) {
	b, err := New("nats://example.test:4222",
		WithSubjectPrefix("twitch.chat"),
		WithClientName("my-bridge"),
		WithTimeout(time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "twitch.chat", b.subjectPrefix)
	assert.Equal(t, "my-bridge", b.clientName)
	assert.Equal(t, time.Second, b.timeout)
}

func TestNew_InvalidOption(t *testing.T) {
	_, err := New("", WithSubjectPrefix(""))
	assert.Error(t, err)
}

// Before Connect the subscriber is a safe no-op; it must never panic inside
// the read loop
func TestSubscriber_Unconnected(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)

	fn := b.Subscriber()
	assert.NotPanics(t, func() {
		fn(event.ChatEvent{Command: event.CommandPrivMsg, Raw: "raw"})
		fn(event.MalformedEvent{Raw: "junk"})
	})
}

func TestClose_Unconnected(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
