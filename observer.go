// Package twitchobserver is a client library for watching Twitch chat. It
// connects to the service's IRC-derived line protocol, authenticates, joins
// channels, and exposes received traffic as typed events, either by
// draining a queue or by subscribing callbacks.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Auth.Nick = "mybot"
//	cfg.Auth.Token = "oauth:..."
//
//	observer, err := twitchobserver.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = observer.Session(ctx, func(o *twitchobserver.Observer) error {
//	    if err := o.JoinChannel("#somechannel"); err != nil {
//	        return err
//	    }
//	    for _, ev := range o.GetEvents() {
//	        ...
//	    }
//	    return nil
//	})
//
// Session guarantees Stop runs on every exit path, including panics. For
// long-lived processes, Start and Stop can be called directly instead.
package twitchobserver

import (
	"context"
	"crypto/tls"

	"github.com/joshuaskelly/twitch-observer/config"
	"github.com/joshuaskelly/twitch-observer/engine"
	"github.com/joshuaskelly/twitch-observer/event"
	"github.com/joshuaskelly/twitch-observer/transport"
)

// Observer is the public facade over the connection engine. All methods
// delegate; the engine holds the behavior.
type Observer struct {
	engine *engine.Engine
}

// New builds an Observer from a configuration. Additional engine options
// are applied after the configuration, so they win on conflict.
func New(cfg config.Config, opts ...engine.Option) (*Observer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := []engine.Option{
		engine.WithCapabilities(cfg.Capabilities),
		engine.WithTemplates(cfg.Commands),
		engine.WithAuthTimeout(cfg.Timeouts.Auth.Std()),
		engine.WithDrainTimeout(cfg.Timeouts.Drain.Std()),
		engine.WithTransportFactory(transportFactory(cfg)),
	}
	if cfg.Queue.Capacity > 0 {
		base = append(base, engine.WithQueueCapacity(cfg.Queue.Capacity))
	}

	eng, err := engine.New(cfg.Auth.Nick, cfg.Auth.Token, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Observer{engine: eng}, nil
}

// transportFactory maps the server configuration to a transport
// constructor.
func transportFactory(cfg config.Config) func() transport.Transport {
	if cfg.Server.Transport == config.TransportWebSocket {
		return func() transport.Transport {
			return transport.NewWebSocket(cfg.Server.URL,
				transport.WithWSDialTimeout(cfg.Timeouts.Dial.Std()))
		}
	}
	return func() transport.Transport {
		opts := []transport.TCPOption{
			transport.WithDialTimeout(cfg.Timeouts.Dial.Std()),
		}
		if cfg.Server.UseTLS {
			opts = append(opts, transport.WithTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
		}
		return transport.NewTCP(cfg.Server.Addr, opts...)
	}
}

// Start connects and authenticates. See engine.Engine.Start.
func (o *Observer) Start(ctx context.Context) error {
	return o.engine.Start(ctx)
}

// Stop disconnects. Idempotent. See engine.Engine.Stop.
func (o *Observer) Stop() error {
	return o.engine.Stop()
}

// Session runs fn within a started session, guaranteeing Stop on every exit
// path, including a panic inside fn.
func (o *Observer) Session(ctx context.Context, fn func(*Observer) error) (err error) {
	if err := o.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopErr := o.Stop()
		if err == nil {
			err = stopErr
		}
	}()
	return fn(o)
}

// State returns the current lifecycle state.
func (o *Observer) State() engine.ConnectionState {
	return o.engine.State()
}

// GetEvents drains and returns all buffered events in arrival order.
func (o *Observer) GetEvents() []event.Event {
	return o.engine.GetEvents()
}

// Subscribe registers a callback for every subsequent event.
func (o *Observer) Subscribe(fn engine.Callback) engine.Subscription {
	return o.engine.Subscribe(fn)
}

// Unsubscribe removes a previously registered callback.
func (o *Observer) Unsubscribe(id engine.Subscription) {
	o.engine.Unsubscribe(id)
}

// JoinChannel requests membership in a channel.
func (o *Observer) JoinChannel(channel string) error {
	return o.engine.JoinChannel(channel)
}

// LeaveChannel requests departure from a channel.
func (o *Observer) LeaveChannel(channel string) error {
	return o.engine.LeaveChannel(channel)
}

// Channels returns a snapshot of channels currently believed joined.
func (o *Observer) Channels() []string {
	return o.engine.Channels()
}

// SendMessage sends a chat message to a channel.
func (o *Observer) SendMessage(channel, text string) error {
	return o.engine.SendMessage(channel, text)
}

// SendWhisper sends a private message to a user.
func (o *Observer) SendWhisper(user, text string) error {
	return o.engine.SendWhisper(user, text)
}

// BanUser bans a user from a channel.
func (o *Observer) BanUser(user, channel string) error {
	return o.engine.BanUser(user, channel)
}

// UnbanUser unbans a user from a channel.
func (o *Observer) UnbanUser(user, channel string) error {
	return o.engine.UnbanUser(user, channel)
}

// ClearChat clears a channel's chat history.
func (o *Observer) ClearChat(channel string) error {
	return o.engine.ClearChat(channel)
}

// ListModerators asks the service to list a channel's moderators.
func (o *Observer) ListModerators(channel string) error {
	return o.engine.ListModerators(channel)
}
