// Package config defines the client configuration: JSON file loading,
// environment overrides, defaults, and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joshuaskelly/twitch-observer/errors"
	"github.com/joshuaskelly/twitch-observer/irc"
)

// Transport mode constants
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "TWITCH_OBSERVER"

// Duration is a time.Duration that marshals as a string ("5s", "250ms").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig selects the endpoint and transport mode.
type ServerConfig struct {
	// Transport is "tcp" or "websocket".
	Transport string `json:"transport"`

	// Addr is the "host:port" for TCP mode; empty uses the service
	// default for the chosen TLS mode.
	Addr string `json:"addr,omitempty"`

	// URL is the "ws://" or "wss://" endpoint for WebSocket mode; empty
	// uses the service default.
	URL string `json:"url,omitempty"`

	// UseTLS enables TLS for TCP mode.
	UseTLS bool `json:"use_tls"`
}

// AuthConfig carries the handshake identity. The token is sent verbatim;
// acquiring it is out of scope.
type AuthConfig struct {
	Nick  string `json:"nick"`
	Token string `json:"token"`
}

// TimeoutsConfig bounds the blocking points of the lifecycle.
type TimeoutsConfig struct {
	Dial  Duration `json:"dial"`
	Auth  Duration `json:"auth"`
	Drain Duration `json:"drain"`
}

// QueueConfig tunes the event queue.
type QueueConfig struct {
	// Capacity bounds the queue; zero keeps it unbounded.
	Capacity int `json:"capacity"`
}

// Config represents the complete client configuration.
type Config struct {
	Server       ServerConfig   `json:"server"`
	Auth         AuthConfig     `json:"auth"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Commands     irc.Templates  `json:"commands,omitempty"`
	Timeouts     TimeoutsConfig `json:"timeouts,omitempty"`
	Queue        QueueConfig    `json:"queue,omitempty"`
}

// Default returns the configuration used when nothing is specified: TLS TCP
// to the service default endpoint with the conventional capability set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Transport: TransportTCP,
			UseTLS:    true,
		},
		Capabilities: []string{
			"twitch.tv/membership",
			"twitch.tv/commands",
			"twitch.tv/tags",
		},
		Commands: irc.DefaultTemplates(),
		Timeouts: TimeoutsConfig{
			Dial:  Duration(10 * time.Second),
			Auth:  Duration(5 * time.Second),
			Drain: Duration(10 * time.Second),
		},
	}
}

// WithDefaults fills unset fields from Default.
func (c Config) WithDefaults() Config {
	def := Default()
	if c.Server.Transport == "" {
		c.Server.Transport = def.Server.Transport
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = def.Capabilities
	}
	if c.Timeouts.Dial == 0 {
		c.Timeouts.Dial = def.Timeouts.Dial
	}
	if c.Timeouts.Auth == 0 {
		c.Timeouts.Auth = def.Timeouts.Auth
	}
	if c.Timeouts.Drain == 0 {
		c.Timeouts.Drain = def.Timeouts.Drain
	}
	return c
}

// Validate checks the configuration for use.
func (c Config) Validate() error {
	if c.Auth.Nick == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "auth.nick required")
	}
	if c.Auth.Token == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "auth.token required")
	}
	switch c.Server.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown transport %q", c.Server.Transport))
	}
	if c.Server.Transport == TransportWebSocket && c.Server.URL != "" {
		if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("websocket url must be ws:// or wss://, got %q", c.Server.URL))
		}
	}
	if c.Queue.Capacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"queue.capacity cannot be negative")
	}
	return nil
}

// Load reads a JSON configuration file, applies environment overrides, and
// fills defaults. Validation is left to the caller so partial configs can
// be inspected.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapInvalid(err, "Config", "Load", "read file")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapInvalid(err, "Config", "Load", "parse json")
		}
	}

	cfg = applyEnvOverrides(cfg)
	return cfg.WithDefaults(), nil
}

// applyEnvOverrides applies TWITCH_OBSERVER_* environment variables on top
// of the loaded configuration.
func applyEnvOverrides(cfg Config) Config {
	if val := os.Getenv(envPrefix + "_NICK"); val != "" {
		cfg.Auth.Nick = val
	}
	if val := os.Getenv(envPrefix + "_TOKEN"); val != "" {
		cfg.Auth.Token = val
	}
	if val := os.Getenv(envPrefix + "_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	if val := os.Getenv(envPrefix + "_URL"); val != "" {
		cfg.Server.URL = val
	}
	if val := os.Getenv(envPrefix + "_TRANSPORT"); val != "" {
		cfg.Server.Transport = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "_TLS"); val != "" {
		cfg.Server.UseTLS = val == "true" || val == "1"
	}
	if val := os.Getenv(envPrefix + "_CAPABILITIES"); val != "" {
		cfg.Capabilities = strings.Split(val, ",")
	}
	return cfg
}
