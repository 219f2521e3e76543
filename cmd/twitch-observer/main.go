// Package main implements a thin command-line wrapper around the
// twitch-observer library: it connects, joins the requested channels, and
// prints every received event, optionally exposing Prometheus metrics and
// bridging events to NATS.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	twitchobserver "github.com/joshuaskelly/twitch-observer"
	"github.com/joshuaskelly/twitch-observer/bridge/natsbridge"
	"github.com/joshuaskelly/twitch-observer/config"
	"github.com/joshuaskelly/twitch-observer/engine"
	"github.com/joshuaskelly/twitch-observer/event"
	"github.com/joshuaskelly/twitch-observer/metric"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "twitch-observer"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := buildConfig(cliCfg)
	if err != nil {
		return err
	}

	// Metrics are optional; without a port the client runs uninstrumented.
	var registry *metric.MetricsRegistry
	opts := []engine.Option{
		engine.WithLogger(&slogAdapter{logger: logger}),
	}
	if cliCfg.MetricsPort > 0 {
		registry = metric.NewMetricsRegistry()
		opts = append(opts, engine.WithMetrics(registry.CoreMetrics()))

		metricsServer := metric.NewServer(cliCfg.MetricsPort, "/metrics", registry)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(ctx)
		}()
		logger.Info("metrics server started", "port", cliCfg.MetricsPort)
	}

	observer, err := twitchobserver.New(cfg, opts...)
	if err != nil {
		return err
	}

	printer := func(ev event.Event) {
		switch typed := ev.(type) {
		case event.ChatEvent:
			logger.Info("event",
				"command", string(typed.Command),
				"nickname", typed.Nickname,
				"channel", typed.Channel,
				"message", typed.Message,
			)
		case event.MalformedEvent:
			logger.Warn("malformed line", "raw", typed.Raw)
		}
	}
	observer.Subscribe(printer)

	if cliCfg.NATSURL != "" {
		bridge, err := natsbridge.New(cliCfg.NATSURL,
			natsbridge.WithClientName(appName),
		)
		if err != nil {
			return err
		}
		if err := bridge.Connect(); err != nil {
			return err
		}
		defer func() { _ = bridge.Close() }()
		observer.Subscribe(bridge.Subscriber())
		logger.Info("nats bridge enabled", "url", cliCfg.NATSURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return observer.Session(ctx, func(o *twitchobserver.Observer) error {
		for _, channel := range splitChannels(cliCfg.Channels) {
			if err := o.JoinChannel(channel); err != nil {
				return err
			}
			logger.Info("joined channel", "channel", channel)
		}

		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	})
}

// buildConfig merges the config file (if any) with command-line overrides.
func buildConfig(cliCfg *CLIConfig) (config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if cliCfg.Nick != "" {
		cfg.Auth.Nick = cliCfg.Nick
	}
	if cliCfg.Token != "" {
		cfg.Auth.Token = cliCfg.Token
	}
	if cliCfg.Transport != "" {
		cfg.Server.Transport = strings.ToLower(cliCfg.Transport)
	}
	if cliCfg.Addr != "" {
		cfg.Server.Addr = cliCfg.Addr
	}
	if cliCfg.URL != "" {
		cfg.Server.URL = cliCfg.URL
	}

	return cfg, cfg.Validate()
}

func splitChannels(channels string) []string {
	if channels == "" {
		return nil
	}
	var out []string
	for _, channel := range strings.Split(channels, ",") {
		channel = strings.TrimSpace(channel)
		if channel != "" {
			out = append(out, channel)
		}
	}
	return out
}
