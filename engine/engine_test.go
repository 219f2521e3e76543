package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/event"
	"github.com/joshuaskelly/twitch-observer/pkg/retry"
	"github.com/joshuaskelly/twitch-observer/transport"
)

const welcomeLine = ":tmi.twitch.tv 001 bot :Welcome, GLHF!"

// newTestEngine wires an engine to an in-memory pipe transport. The pipe is
// pre-fed the welcome numeric so Start's handshake wait succeeds.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *transport.Pipe) {
	t.Helper()

	pipe := transport.NewPipe()
	pipe.FeedLine(welcomeLine)

	base := []Option{
		WithTransportFactory(func() transport.Transport { return pipe }),
		WithAuthTimeout(2 * time.Second),
		WithDrainTimeout(2 * time.Second),
	}
	eng, err := New("bot", "oauth:secret", append(base, opts...)...)
	require.NoError(t, err)
	return eng, pipe
}

// collector records dispatched events and lets tests wait for a count.
type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) callback(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []event.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.events) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New("", "oauth:secret")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = New("bot", "")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestStart_SendsHandshake(t *testing.T) {
	eng, pipe := newTestEngine(t)

	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	assert.Equal(t, StateConnected, eng.State())
	assert.NotEmpty(t, eng.SessionID())

	written := pipe.Written()
	require.Len(t, written, 5)
	assert.Equal(t, "PASS oauth:secret\r\n", written[0])
	assert.Equal(t, "NICK bot\r\n", written[1])
	assert.Equal(t, "CAP REQ :twitch.tv/membership\r\n", written[2])
	assert.Equal(t, "CAP REQ :twitch.tv/commands\r\n", written[3])
	assert.Equal(t, "CAP REQ :twitch.tv/tags\r\n", written[4])

	// The welcome numeric consumed during the handshake is still delivered
	events := eng.GetEvents()
	require.Len(t, events, 1)
	chat, ok := events[0].(event.ChatEvent)
	require.True(t, ok)
	assert.Equal(t, event.CommandUnknown, chat.Command)
	assert.Equal(t, welcomeLine, chat.Raw)
}

func TestStart_AuthRejected(t *testing.T) {
	pipe := transport.NewPipe()
	pipe.FeedLine(":tmi.twitch.tv NOTICE * :Login authentication failed")

	eng, err := New("bot", "oauth:bad",
		WithTransportFactory(func() transport.Transport { return pipe }),
		WithAuthTimeout(2*time.Second),
	)
	require.NoError(t, err)

	err = eng.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)
	assert.Equal(t, StateDisconnected, eng.State())
}

func TestStart_ConnectFailure(t *testing.T) {
	pipe := transport.NewPipe()
	pipe.FailConnect(errors.New("connection refused"))

	eng, err := New("bot", "oauth:secret",
		WithTransportFactory(func() transport.Transport { return pipe }),
		WithDialRetry(fastRetry()),
	)
	require.NoError(t, err)

	err = eng.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, eng.State())
}

func TestStart_HandshakeTimeout(t *testing.T) {
	pipe := transport.NewPipe() // nothing fed: the server stays silent

	eng, err := New("bot", "oauth:secret",
		WithTransportFactory(func() transport.Transport { return pipe }),
		WithAuthTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	err = eng.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionTimeout)
	assert.Equal(t, StateDisconnected, eng.State())
}

func TestStart_TwiceRejected(t *testing.T) {
	eng, _ := newTestEngine(t)

	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	err := eng.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyConnected)
}

// Send operations outside Connected fail and write nothing
func TestSend_NotConnected(t *testing.T) {
	eng, pipe := newTestEngine(t)

	assert.ErrorIs(t, eng.SendMessage("#chan", "hi"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.JoinChannel("#chan"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.LeaveChannel("#chan"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.SendWhisper("user", "hi"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.BanUser("user", "#chan"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.UnbanUser("user", "#chan"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.ClearChat("#chan"), errors.ErrNotConnected)
	assert.ErrorIs(t, eng.ListModerators("#chan"), errors.ErrNotConnected)

	assert.Empty(t, pipe.Written())
	assert.Empty(t, eng.Channels())
}

func TestStop_Idempotent(t *testing.T) {
	eng, _ := newTestEngine(t)

	// Stop before any Start is a no-op
	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop())
	assert.Equal(t, StateDisconnected, eng.State())

	require.NoError(t, eng.Start(context.Background()))
	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop())
	assert.Equal(t, StateDisconnected, eng.State())
}

func TestJoinLeave_UpdatesMembership(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	require.NoError(t, eng.JoinChannel("test"))
	require.NoError(t, eng.JoinChannel("#other"))
	assert.Equal(t, []string{"#other", "#test"}, eng.Channels())

	require.NoError(t, eng.LeaveChannel("#test"))
	assert.Equal(t, []string{"#other"}, eng.Channels())

	written := pipe.Written()
	assert.Contains(t, written, "JOIN #test\r\n")
	assert.Contains(t, written, "JOIN #other\r\n")
	assert.Contains(t, written, "PART #test\r\n")
}

// Server-acked JOIN/PART for our own nick corrects the membership set
func TestMembership_ServerAck(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var c collector
	eng.Subscribe(c.callback)

	pipe.FeedLine(":bot!bot@bot.tmi.twitch.tv JOIN #test")
	c.waitFor(t, 1)
	assert.Equal(t, []string{"#test"}, eng.Channels())

	pipe.FeedLine(":bot!bot@bot.tmi.twitch.tv PART #test")
	c.waitFor(t, 2)
	assert.Empty(t, eng.Channels())

	// Another user's JOIN does not touch our membership
	pipe.FeedLine(":stranger!stranger@stranger.tmi.twitch.tv JOIN #elsewhere")
	c.waitFor(t, 3)
	assert.Empty(t, eng.Channels())
}

// The full scenario: start, join, receive the ack, drain it
func TestScenario_JoinAck(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	eng.GetEvents() // discard the welcome numeric
	require.NoError(t, eng.JoinChannel("#test"))

	var c collector
	sub := eng.Subscribe(c.callback)
	defer eng.Unsubscribe(sub)

	pipe.FeedLine(":bot!bot@bot.tmi.twitch.tv JOIN #test")
	c.waitFor(t, 1)

	events := eng.GetEvents()
	require.Len(t, events, 1)
	chat, ok := events[0].(event.ChatEvent)
	require.True(t, ok)
	assert.Equal(t, event.CommandJoin, chat.Command)
	assert.Equal(t, "bot", chat.Nickname)
	assert.Equal(t, "#test", chat.Channel)
}

// Events reach subscribers in strict receipt order
func TestDispatch_Order(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var c collector
	eng.Subscribe(c.callback)

	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :a")
	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :b")

	events := c.waitFor(t, 2)
	first := events[0].(event.ChatEvent)
	second := events[1].(event.ChatEvent)
	assert.Equal(t, "a", first.Message)
	assert.Equal(t, "b", second.Message)
}

// GetEvents drains once; a second call with no new traffic returns nothing
func TestGetEvents_OneShot(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var c collector
	eng.Subscribe(c.callback)
	eng.GetEvents() // discard the welcome numeric

	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :hello")
	c.waitFor(t, 1)

	assert.Len(t, eng.GetEvents(), 1)
	assert.Empty(t, eng.GetEvents())
}

// PING gets an automatic PONG and is still delivered as an event
func TestPing_AutoReply(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var c collector
	eng.Subscribe(c.callback)

	pipe.FeedLine("PING :tmi.twitch.tv")

	events := c.waitFor(t, 1)
	chat, ok := events[0].(event.ChatEvent)
	require.True(t, ok)
	assert.Equal(t, event.CommandPing, chat.Command)

	require.Eventually(t, func() bool {
		for _, line := range pipe.Written() {
			if line == "PONG :tmi.twitch.tv\r\n" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

// Unparseable lines become MalformedEvent with the raw preserved exactly
func TestMalformed_Delivered(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var c collector
	eng.Subscribe(c.callback)
	eng.GetEvents()

	pipe.FeedLine("complete nonsense with no command")

	events := c.waitFor(t, 1)
	malformed, ok := events[0].(event.MalformedEvent)
	require.True(t, ok)
	assert.Equal(t, "complete nonsense with no command", malformed.Raw)

	drained := eng.GetEvents()
	require.Len(t, drained, 1)
	assert.IsType(t, event.MalformedEvent{}, drained[0])
}

// One panicking subscriber must not stop delivery to the others
func TestDispatch_PanicIsolation(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	eng.Subscribe(func(event.Event) { panic("bad subscriber") })
	var c collector
	eng.Subscribe(c.callback)

	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :still alive")
	events := c.waitFor(t, 1)

	chat := events[0].(event.ChatEvent)
	assert.Equal(t, "still alive", chat.Message)

	// The read loop survived; more traffic still flows
	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :second")
	c.waitFor(t, 2)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	var kept, removed collector
	eng.Subscribe(kept.callback)
	sub := eng.Subscribe(removed.callback)
	eng.Unsubscribe(sub)

	// Unsubscribing an unknown handle is a no-op
	eng.Unsubscribe(Subscription("not-registered"))

	pipe.FeedLine(":u!u@u.tmi.twitch.tv PRIVMSG #c :only for kept")
	kept.waitFor(t, 1)
	assert.Empty(t, removed.snapshot())
}

// A transport read failure flips the engine to Disconnected; subsequent
// sends fail with the not-connected error
func TestReadFailure_Disconnects(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))

	_ = pipe.Close() // simulate the server dropping the connection

	require.Eventually(t, func() bool {
		return eng.State() == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, eng.SendMessage("#c", "hi"), errors.ErrNotConnected)
	require.NoError(t, eng.Stop())
}

// Write failures propagate synchronously to the caller
func TestSend_WriteFailure(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	pipe.FailWrites(errors.New("broken pipe"))
	err := eng.SendMessage("#c", "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrNotConnected)
}

// Moderation and whisper commands use the configured templates
func TestSend_SlashCommands(t *testing.T) {
	eng, pipe := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))
	defer func() { _ = eng.Stop() }()

	require.NoError(t, eng.SendWhisper("friend", "hello there"))
	require.NoError(t, eng.BanUser("spammer", "#chan"))
	require.NoError(t, eng.UnbanUser("spammer", "#chan"))
	require.NoError(t, eng.ClearChat("#chan"))
	require.NoError(t, eng.ListModerators("#chan"))

	written := pipe.Written()
	assert.Contains(t, written, "PRIVMSG #jtv :/w friend hello there\r\n")
	assert.Contains(t, written, "PRIVMSG #chan :/ban spammer\r\n")
	assert.Contains(t, written, "PRIVMSG #chan :/unban spammer\r\n")
	assert.Contains(t, written, "PRIVMSG #chan :/clear\r\n")
	assert.Contains(t, written, "PRIVMSG #chan :/mods\r\n")
}

// The engine restarts cleanly after Stop
func TestRestart(t *testing.T) {
	pipe1 := transport.NewPipe()
	pipe1.FeedLine(welcomeLine)
	pipe2 := transport.NewPipe()
	pipe2.FeedLine(welcomeLine)

	pipes := []*transport.Pipe{pipe1, pipe2}
	next := 0

	eng, err := New("bot", "oauth:secret",
		WithTransportFactory(func() transport.Transport {
			p := pipes[next]
			next++
			return p
		}),
		WithAuthTimeout(2*time.Second),
		WithDrainTimeout(2*time.Second),
	)
	require.NoError(t, err)

	require.NoError(t, eng.Start(context.Background()))
	firstSession := eng.SessionID()
	require.NoError(t, eng.Stop())

	require.NoError(t, eng.Start(context.Background()))
	assert.Equal(t, StateConnected, eng.State())
	assert.NotEqual(t, firstSession, eng.SessionID())
	require.NoError(t, eng.Stop())
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}
