package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/stopify/go/clients/stopify_client"
	"github.com/mcdev12/stopify/go/internal/config"
	"github.com/mcdev12/stopify/go/internal/identity"
	"github.com/mcdev12/stopify/go/internal/room"
	"github.com/mcdev12/stopify/go/internal/room/channel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := stopify_client.NewStopifyClient(cfg.API.URL, cfg.RequestTimeout())

	identityPath := cfg.Identity.File
	if identityPath == "" {
		identityPath = identity.DefaultPath()
	}
	store := identity.NewFileStore(identityPath)
	if playerID, err := store.Load(); err == nil {
		log.Info().Str("player_id", playerID).Str("path", store.Path()).Msg("found saved identity, use resume <code> to rejoin")
	} else if !errors.Is(err, identity.ErrNoIdentity) {
		log.Warn().Err(err).Str("path", store.Path()).Msg("failed to read saved identity")
	}

	console := NewConsole(client, newTransport(cfg), store, consoleConfig{
		Session: room.Config{
			TickInterval:  cfg.TickInterval(),
			SubmitTimeout: cfg.RequestTimeout(),
		},
		Channel: channel.Config{
			InitialInterval: cfg.ReconnectInitial(),
			MaxInterval:     cfg.ReconnectMax(),
			BufferSize:      channel.DefaultConfig().BufferSize,
		},
	}, os.Stdout)

	if cfg.Status.Port != "" {
		server := startStatusServer(cfg.Status.Port, console)
		defer shutdownStatusServer(server)
	}

	if err := console.Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("console stopped")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newTransport(cfg *config.Config) channel.Transport {
	switch cfg.Stream.Transport {
	case config.TransportWebSocket:
		return channel.NewWebSocketTransport(cfg.StreamURL(), channel.DefaultWebSocketConfig())
	case config.TransportNATS:
		natsConfig := channel.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		return channel.NewNATSTransport(natsConfig)
	default:
		// The stream is long-lived, so it gets its own client without the request timeout.
		return channel.NewSSETransport(cfg.StreamURL(), nil)
	}
}
