package twitchobserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaskelly/twitch-observer/config"
	"github.com/joshuaskelly/twitch-observer/engine"
	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/event"
	"github.com/joshuaskelly/twitch-observer/transport"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.Nick = "bot"
	cfg.Auth.Token = "oauth:secret"
	return cfg
}

// newTestObserver wires the facade to an in-memory pipe transport.
func newTestObserver(t *testing.T) (*Observer, *transport.Pipe) {
	t.Helper()

	pipe := transport.NewPipe()
	pipe.FeedLine(":tmi.twitch.tv 001 bot :Welcome, GLHF!")

	observer, err := New(testConfig(),
		engine.WithTransportFactory(func() transport.Transport { return pipe }),
		engine.WithAuthTimeout(2*time.Second),
		engine.WithDrainTimeout(2*time.Second),
	)
	require.NoError(t, err)
	return observer, pipe
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(config.Config{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	cfg := testConfig()
	cfg.Server.Transport = "carrier-pigeon"
	_, err = New(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

// Session starts the observer, runs the body, and always stops it
func TestSession_StopsOnSuccess(t *testing.T) {
	observer, _ := newTestObserver(t)

	err := observer.Session(context.Background(), func(o *Observer) error {
		assert.Equal(t, engine.StateConnected, o.State())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, engine.StateDisconnected, observer.State())
}

func TestSession_StopsOnError(t *testing.T) {
	observer, _ := newTestObserver(t)
	sentinel := errors.New("body failed")

	err := observer.Session(context.Background(), func(*Observer) error {
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, engine.StateDisconnected, observer.State())
}

func TestSession_StopsOnPanic(t *testing.T) {
	observer, _ := newTestObserver(t)

	assert.Panics(t, func() {
		_ = observer.Session(context.Background(), func(*Observer) error {
			panic("body exploded")
		})
	})
	assert.Equal(t, engine.StateDisconnected, observer.State())
}

func TestSession_StartFailure(t *testing.T) {
	pipe := transport.NewPipe()
	pipe.FailConnect(errors.New("connection refused"))

	observer, err := New(testConfig(),
		engine.WithTransportFactory(func() transport.Transport { return pipe }),
	)
	require.NoError(t, err)

	called := false
	err = observer.Session(context.Background(), func(*Observer) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, engine.StateDisconnected, observer.State())
}

// The facade is pure delegation; one pass over the surface
func TestObserver_Delegation(t *testing.T) {
	observer, pipe := newTestObserver(t)

	err := observer.Session(context.Background(), func(o *Observer) error {
		if err := o.JoinChannel("#test"); err != nil {
			return err
		}
		assert.Equal(t, []string{"#test"}, o.Channels())

		if err := o.SendMessage("#test", "hello"); err != nil {
			return err
		}

		got := make(chan event.Event, 4)
		sub := o.Subscribe(func(ev event.Event) { got <- ev })

		pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #test :hi bot")
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}

		o.Unsubscribe(sub)

		events := o.GetEvents()
		require.NotEmpty(t, events)
		last := events[len(events)-1].(event.ChatEvent)
		assert.Equal(t, "hi bot", last.Message)

		return o.LeaveChannel("#test")
	})
	require.NoError(t, err)

	written := pipe.Written()
	assert.Contains(t, written, "JOIN #test\r\n")
	assert.Contains(t, written, "PRIVMSG #test :hello\r\n")
	assert.Contains(t, written, "PART #test\r\n")
}
