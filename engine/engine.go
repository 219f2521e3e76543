// Package engine implements the connection/event engine: the lifecycle
// state machine, the background read loop, the event queue, and subscriber
// dispatch. One Engine owns one transport connection and one read-loop
// goroutine.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/event"
	"github.com/joshuaskelly/twitch-observer/irc"
	"github.com/joshuaskelly/twitch-observer/metric"
	"github.com/joshuaskelly/twitch-observer/pkg/queue"
	"github.com/joshuaskelly/twitch-observer/pkg/retry"
	"github.com/joshuaskelly/twitch-observer/transport"
)

// authFailedLine is the literal server reply to a rejected credential.
const authFailedLine = ":tmi.twitch.tv NOTICE * :Login authentication failed"

// DefaultCapabilities are the capability requests sent during the
// handshake. Tags and commands unlock the richer event kinds (WHISPER,
// ROOMSTATE, USERNOTICE, ...); membership unlocks JOIN/PART for other
// users.
var DefaultCapabilities = []string{
	"twitch.tv/membership",
	"twitch.tv/commands",
	"twitch.tv/tags",
}

// Engine connects to the chat service, authenticates, and turns incoming
// protocol lines into events delivered through a drainable queue and to
// subscriber callbacks.
//
// Concurrency contract: any number of application goroutines may call the
// send operations, GetEvents, Subscribe, and Unsubscribe concurrently.
// Start and Stop must be serialized by the caller.
type Engine struct {
	nick         string
	token        string
	capabilities []string
	templates    irc.Templates
	newTransport func() transport.Transport
	dialRetry    retry.Config
	authTimeout  time.Duration
	drainTimeout time.Duration
	logger       Logger
	metrics      *metric.Metrics

	queueCapacity int
	events        *queue.Queue[event.Event]
	registry      *subscriberRegistry

	state atomic.Value // stores ConnectionState

	// Session state, rebuilt by each Start
	mu        sync.Mutex // guards tr, done, sessionID
	tr        transport.Transport
	done      chan struct{}
	sessionID string
	wg        sync.WaitGroup

	channelsMu sync.Mutex
	channels   map[string]bool
}

// New creates an engine that will authenticate as nick with the given
// credential. The credential is sent verbatim; acquiring it is the caller's
// concern.
func New(nick, token string, opts ...Option) (*Engine, error) {
	if nick == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "nick required")
	}
	if token == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "token required")
	}

	e := &Engine{
		nick:         nick,
		token:        token,
		capabilities: DefaultCapabilities,
		templates:    irc.DefaultTemplates(),
		dialRetry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		authTimeout:  5 * time.Second,
		drainTimeout: 10 * time.Second,
		logger:       &defaultLogger{},
		channels:     make(map[string]bool),
		registry:     newSubscriberRegistry(),
	}
	e.newTransport = func() transport.Transport {
		return transport.NewTCP("", transport.WithTLS(nil))
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, errors.WrapInvalid(err, "Engine", "New", "apply option")
		}
	}

	var qopts []queue.Option[event.Event]
	if e.queueCapacity > 0 {
		qopts = append(qopts,
			queue.WithCapacity[event.Event](e.queueCapacity),
			queue.WithOverflowPolicy[event.Event](queue.DropOldest),
		)
	}
	q, err := queue.New(qopts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Engine", "New", "create event queue")
	}
	e.events = q

	e.state.Store(StateDisconnected)
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() ConnectionState {
	return e.state.Load().(ConnectionState)
}

// SessionID returns the identifier of the current (or most recent) session,
// empty before the first Start.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *Engine) setState(s ConnectionState) {
	e.state.Store(s)
	if e.metrics != nil {
		e.metrics.ConnectionState.Set(float64(s))
	}
}

// Start opens the transport, performs the authentication handshake, and
// spawns the background read loop. Valid only from the disconnected state.
// On any failure the state is left disconnected and the transport closed.
func (e *Engine) Start(ctx context.Context) error {
	if e.State() != StateDisconnected {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "Engine", "Start", "check state")
	}
	e.setState(StateConnecting)

	if e.metrics != nil {
		e.metrics.ConnectAttempts.Inc()
	}

	tr := e.newTransport()
	err := retry.Do(ctx, e.dialRetry, func() error {
		return tr.Connect(ctx)
	})
	if err != nil {
		e.setState(StateDisconnected)
		return errors.WrapTransient(err, "Engine", "Start", "open transport")
	}

	// The transport is published before the handshake so that a PING in
	// the first server traffic can be answered through the normal path.
	e.mu.Lock()
	e.tr = tr
	e.mu.Unlock()

	if err := e.handshake(tr); err != nil {
		_ = tr.Close()
		e.mu.Lock()
		e.tr = nil
		e.mu.Unlock()
		e.setState(StateDisconnected)
		return err
	}

	session := uuid.NewString()
	done := make(chan struct{})

	e.mu.Lock()
	e.done = done
	e.sessionID = session
	e.mu.Unlock()

	e.setState(StateConnected)
	e.logger.Printf("connected as %s (session %s)", e.nick, session)

	e.wg.Add(1)
	go e.readLoop(tr, done)

	return nil
}

// handshake sends the credential, nickname, and capability lines, then
// waits (bounded) for first server traffic. The service answers a rejected
// login with a well-known NOTICE; anything else is normal traffic and is
// delivered through the ordinary event path.
func (e *Engine) handshake(tr transport.Transport) error {
	lines := []string{
		irc.Pass(e.token),
		irc.Nick(e.nick),
	}
	for _, capability := range e.capabilities {
		lines = append(lines, irc.CapReq(capability))
	}
	for _, line := range lines {
		if err := tr.WriteLine(line); err != nil {
			return errors.WrapTransient(err, "Engine", "Start", "send handshake")
		}
	}

	type readResult struct {
		line string
		err  error
	}
	first := make(chan readResult, 1)
	go func() {
		line, err := tr.ReadLine()
		first <- readResult{line: line, err: err}
	}()

	timer := time.NewTimer(e.authTimeout)
	defer timer.Stop()

	select {
	case res := <-first:
		if res.err != nil {
			return errors.WrapTransient(res.err, "Engine", "Start", "read handshake reply")
		}
		if res.line == authFailedLine {
			return errors.WrapFatal(errors.ErrAuthenticationFailed, "Engine", "Start", "authenticate")
		}
		// Normal traffic already; deliver it like any other line.
		e.processLine(res.line)
		return nil
	case <-timer.C:
		// The pending ReadLine goroutine unblocks when the caller closes
		// the transport.
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Engine", "Start", "await handshake reply")
	}
}

// Stop signals the read loop to terminate, closes the transport, and waits
// (bounded) for the loop to exit. After Stop returns no further events are
// delivered. Stop from the disconnected state is a no-op.
func (e *Engine) Stop() error {
	if e.State() == StateDisconnected {
		return nil
	}

	e.mu.Lock()
	tr := e.tr
	done := e.done
	e.tr = nil
	e.done = nil
	e.mu.Unlock()

	if done != nil {
		close(done)
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			e.logger.Errorf("transport close: %v", err)
		}
	}

	exited := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(e.drainTimeout):
		e.logger.Errorf("read loop did not exit within %v", e.drainTimeout)
	}

	e.setState(StateDisconnected)
	e.logger.Printf("disconnected")
	return nil
}

// readLoop consumes transport lines until the transport fails or Stop
// signals shutdown. It is the sole producer for the event queue and the
// sole invoker of subscriber callbacks.
func (e *Engine) readLoop(tr transport.Transport, done chan struct{}) {
	defer e.wg.Done()

	for {
		line, err := tr.ReadLine()
		if err != nil {
			select {
			case <-done:
				// Shutdown requested; Stop owns the state transition.
			default:
				e.logger.Errorf("read loop terminated: %v", err)
				_ = tr.Close()
				e.setState(StateDisconnected)
			}
			return
		}

		select {
		case <-done:
			return
		default:
		}

		e.processLine(line)
	}
}

// processLine decodes one line and routes the result: PING gets an
// immediate PONG reply, membership acks for our own nick correct the
// channel set, and every event (malformed included) is queued first and
// then dispatched to subscribers in registration order.
func (e *Engine) processLine(line string) {
	ev := irc.Decode(line)

	switch typed := ev.(type) {
	case event.ChatEvent:
		if e.metrics != nil {
			e.metrics.EventsReceived.WithLabelValues(string(typed.Command)).Inc()
		}

		switch typed.Command {
		case event.CommandPing:
			e.answerPing(typed)
		case event.CommandJoin, event.CommandPart:
			e.recordMembershipAck(typed)
		}

	case event.MalformedEvent:
		if e.metrics != nil {
			e.metrics.MalformedLines.Inc()
		}
		e.logger.Debugf("malformed line: %q", typed.Raw)
	}

	e.events.Push(ev)
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(e.events.Len()))
	}

	e.dispatch(ev)
}

// answerPing writes the keepalive reply. The PING event is still delivered
// to the application afterwards.
func (e *Engine) answerPing(ev event.ChatEvent) {
	e.mu.Lock()
	tr := e.tr
	e.mu.Unlock()
	if tr == nil {
		return
	}

	if err := tr.WriteLine(irc.Pong(ev.Message)); err != nil {
		e.logger.Errorf("pong reply: %v", err)
		return
	}
	if e.metrics != nil {
		e.metrics.PingsAnswered.Inc()
	}
}

// recordMembershipAck updates the channel set when the server acknowledges
// our own JOIN or PART. Acks for other users are plain events.
func (e *Engine) recordMembershipAck(ev event.ChatEvent) {
	if ev.Nickname != e.nick || ev.Channel == "" {
		return
	}

	e.channelsMu.Lock()
	defer e.channelsMu.Unlock()
	if ev.Command == event.CommandJoin {
		e.channels[ev.Channel] = true
	} else {
		delete(e.channels, ev.Channel)
	}
}

// dispatch invokes every registered subscriber with ev, in registration
// order. A panicking callback is logged and skipped so one bad subscriber
// cannot stop delivery to the others or kill the read loop.
func (e *Engine) dispatch(ev event.Event) {
	for _, reg := range e.registry.snapshot() {
		e.invoke(reg, ev)
	}
}

func (e *Engine) invoke(reg registration, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			if e.metrics != nil {
				e.metrics.SubscriberErrors.Inc()
			}
			e.logger.Errorf("subscriber %s panicked: %v", reg.id, r)
		}
	}()

	reg.fn(ev)
	if e.metrics != nil {
		e.metrics.EventsDispatched.Inc()
	}
}

// GetEvents drains and returns all currently buffered events in arrival
// order. It never blocks; with no new traffic it returns an empty slice.
func (e *Engine) GetEvents() []event.Event {
	events := e.events.Drain()
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(0)
	}
	return events
}

// Subscribe registers a callback for every subsequent event and returns the
// handle needed to unsubscribe it.
func (e *Engine) Subscribe(fn Callback) Subscription {
	return e.registry.add(fn)
}

// Unsubscribe removes a previously registered callback. Unknown handles are
// ignored.
func (e *Engine) Unsubscribe(id Subscription) {
	e.registry.remove(id)
}

// connectedTransport returns the transport when the engine is connected.
func (e *Engine) connectedTransport(operation string) (transport.Transport, error) {
	if e.State() != StateConnected {
		return nil, errors.WrapInvalid(errors.ErrNotConnected, "Engine", operation, "check state")
	}

	e.mu.Lock()
	tr := e.tr
	e.mu.Unlock()
	if tr == nil {
		return nil, errors.WrapInvalid(errors.ErrNotConnected, "Engine", operation, "check transport")
	}
	return tr, nil
}

// send writes one encoded line, attributing it to command for metrics.
func (e *Engine) send(operation string, command event.Command, line string) error {
	tr, err := e.connectedTransport(operation)
	if err != nil {
		return err
	}

	if err := tr.WriteLine(line); err != nil {
		return errors.WrapTransient(err, "Engine", operation, "write")
	}
	if e.metrics != nil {
		e.metrics.LinesSent.WithLabelValues(string(command)).Inc()
	}
	return nil
}

// SendMessage sends a chat message to a channel.
func (e *Engine) SendMessage(channel, text string) error {
	return e.send("SendMessage", event.CommandPrivMsg, irc.Message(channel, text))
}

// JoinChannel requests membership in a channel. The membership set is
// updated optimistically; the server's acknowledgment arrives through the
// ordinary event stream.
func (e *Engine) JoinChannel(channel string) error {
	line := irc.Join(channel)
	if err := e.send("JoinChannel", event.CommandJoin, line); err != nil {
		return err
	}

	e.channelsMu.Lock()
	e.channels[canonicalChannel(channel)] = true
	e.channelsMu.Unlock()
	return nil
}

// LeaveChannel requests departure from a channel, removing it from the
// membership set optimistically.
func (e *Engine) LeaveChannel(channel string) error {
	line := irc.Part(channel)
	if err := e.send("LeaveChannel", event.CommandPart, line); err != nil {
		return err
	}

	e.channelsMu.Lock()
	delete(e.channels, canonicalChannel(channel))
	e.channelsMu.Unlock()
	return nil
}

// Channels returns a sorted snapshot of channels currently believed joined.
func (e *Engine) Channels() []string {
	e.channelsMu.Lock()
	channels := make([]string, 0, len(e.channels))
	for name := range e.channels {
		channels = append(channels, name)
	}
	e.channelsMu.Unlock()

	sort.Strings(channels)
	return channels
}

// SendWhisper sends a private message to a user via the service channel.
func (e *Engine) SendWhisper(user, text string) error {
	return e.send("SendWhisper", event.CommandWhisper, e.templates.WhisperLine(user, text))
}

// BanUser bans a user from a channel.
func (e *Engine) BanUser(user, channel string) error {
	return e.send("BanUser", event.CommandPrivMsg, e.templates.BanLine(user, channel))
}

// UnbanUser unbans a user from a channel.
func (e *Engine) UnbanUser(user, channel string) error {
	return e.send("UnbanUser", event.CommandPrivMsg, e.templates.UnbanLine(user, channel))
}

// ClearChat clears a channel's chat history.
func (e *Engine) ClearChat(channel string) error {
	return e.send("ClearChat", event.CommandPrivMsg, e.templates.ClearLine(channel))
}

// ListModerators asks the service to list a channel's moderators; the reply
// arrives as a NOTICE event.
func (e *Engine) ListModerators(channel string) error {
	return e.send("ListModerators", event.CommandPrivMsg, e.templates.ModsLine(channel))
}

// canonicalChannel normalizes a channel name to its wire form.
func canonicalChannel(channel string) string {
	if channel == "" || channel[0] == '#' {
		return channel
	}
	return "#" + channel
}
