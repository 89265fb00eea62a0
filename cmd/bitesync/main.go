package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"bitesync/internal/client"
	"bitesync/internal/config"
	"bitesync/internal/event"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	// Best-effort .env loading before the config reads the environment
	_ = godotenv.Load()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", *configPath).
		Str("streamUrl", cfg.StreamURL).
		Str("pollUrl", cfg.PollURL).
		Int("subscriptions", len(cfg.Subscriptions)).
		Msg("starting bitesync")

	// Create client
	c, err := client.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}

	// Register configured subscriptions before connecting; they are announced
	// as soon as the stream is up
	for _, sub := range cfg.Subscriptions {
		kinds := make([]event.Kind, 0, len(sub.Kinds))
		for _, raw := range sub.Kinds {
			kind, ok := event.KindFromString(raw)
			if !ok {
				logger.Warn().Str("scope", sub.Scope).Str("kind", raw).Msg("skipping unknown event kind")
				continue
			}
			kinds = append(kinds, kind)
		}
		id := c.Subscribe(sub.Scope, kinds, func(ev event.Event) {
			logger.Info().
				Str("kind", string(ev.Kind)).
				Str("scope", ev.Scope).
				Time("timestamp", ev.Timestamp).
				Int("payloadBytes", len(ev.Payload)).
				Msg("event received")
		})
		logger.Info().Str("subscription", id).Str("scope", sub.Scope).Int("kinds", len(kinds)).Msg("subscription registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial connect failed, reconnecting in background")
	}

	// Periodic status log
	if interval := cfg.GetStatusLogIntervalDuration(); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats := c.Stats()
					logger.Info().
						Str("state", c.State().String()).
						Int("subscriptions", c.Subscriptions()).
						Int64("frames", stats.FramesReceived).
						Int64("dropped", stats.DroppedFrames).
						Int64("reconnects", stats.Reconnects).
						Msg("status")
				}
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	c.Disconnect()
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
