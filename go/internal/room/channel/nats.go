package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS transport
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "room" subscribes to "room.{code}.events"
	Name          string
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "room",
		Name:          "stopify-client",
	}
}

// NATSTransport receives enveloped room notifications from a NATS subject
type NATSTransport struct {
	config NATSConfig
}

// NewNATSTransport creates a NATS transport
func NewNATSTransport(config NATSConfig) *NATSTransport {
	return &NATSTransport{config: config}
}

func (t *NATSTransport) Name() string { return "nats" }

// Subject returns the subject notifications for a room code are published on
func (t *NATSTransport) Subject(code string) string {
	return fmt.Sprintf("%s.%s.events", strings.TrimSuffix(t.config.SubjectPrefix, "."), code)
}

func (t *NATSTransport) Subscribe(ctx context.Context, code string) (Stream, error) {
	opts := []nats.Option{
		nats.Name(t.config.Name),
		// The channel owns reconnects so a gap always surfaces as a status change.
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error().Err(err).Str("room_code", code).Msg("NATS disconnected")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Str("room_code", code).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := nc.SubscribeSync(t.Subject(code))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", t.Subject(code), err)
	}

	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	return &natsStream{nc: nc, sub: sub}, nil
}

type natsStream struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

func (s *natsStream) Next(ctx context.Context) (RawEvent, error) {
	for {
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err != nil {
			return RawEvent{}, fmt.Errorf("next NATS message: %w", err)
		}

		env, err := events.DecodeEnvelope(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed NATS message")
			continue
		}
		return RawEvent{ID: env.ID, Name: env.Event, Data: env.Data}, nil
	}
}

func (s *natsStream) Close() error {
	if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
		log.Debug().Err(err).Msg("failed to unsubscribe")
	}
	s.nc.Close()
	return nil
}
