package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	Nick        string
	Token       string
	Channels    string
	Transport   string
	Addr        string
	URL         string
	NATSURL     string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	ShowVersion bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("TWITCH_OBSERVER_CONFIG", ""),
		"Path to configuration file (env: TWITCH_OBSERVER_CONFIG)")

	flag.StringVar(&cfg.Nick, "nick",
		getEnv("TWITCH_OBSERVER_NICK", ""),
		"Nickname to authenticate as (env: TWITCH_OBSERVER_NICK)")

	flag.StringVar(&cfg.Token, "token",
		getEnv("TWITCH_OBSERVER_TOKEN", ""),
		"OAuth token, sent verbatim (env: TWITCH_OBSERVER_TOKEN)")

	flag.StringVar(&cfg.Channels, "channels", "",
		"Comma-separated channels to join on connect")

	flag.StringVar(&cfg.Transport, "transport",
		getEnv("TWITCH_OBSERVER_TRANSPORT", "tcp"),
		"Transport: tcp, websocket (env: TWITCH_OBSERVER_TRANSPORT)")

	flag.StringVar(&cfg.Addr, "addr",
		getEnv("TWITCH_OBSERVER_ADDR", ""),
		"host:port for tcp transport, empty for service default (env: TWITCH_OBSERVER_ADDR)")

	flag.StringVar(&cfg.URL, "url",
		getEnv("TWITCH_OBSERVER_URL", ""),
		"ws:// or wss:// endpoint for websocket transport (env: TWITCH_OBSERVER_URL)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("TWITCH_OBSERVER_NATS_URL", ""),
		"NATS server to bridge events to, empty to disable (env: TWITCH_OBSERVER_NATS_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TWITCH_OBSERVER_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: TWITCH_OBSERVER_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TWITCH_OBSERVER_LOG_FORMAT", "text"),
		"Log format: json, text (env: TWITCH_OBSERVER_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("TWITCH_OBSERVER_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: TWITCH_OBSERVER_METRICS_PORT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		_, _ = fmt.Fprintf(os.Stderr, "warning: invalid integer for %s, using default %d\n", key, fallback)
	}
	return fallback
}
