package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyOpen = errors.New("room channel already open")
	ErrClosed      = errors.New("room channel closed")
)

// Config holds reconnect and buffering settings for a Channel
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	BufferSize      int
}

// DefaultConfig returns default channel configuration
func DefaultConfig() Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		BufferSize:      64,
	}
}

// Option configures a Channel
type Option func(*Channel)

// WithClock sets the clock used to time reconnect waits
func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) { c.clock = clock }
}

// WithConfig replaces the default reconnect and buffer settings
func WithConfig(cfg Config) Option {
	return func(c *Channel) { c.config = cfg }
}

// WithBackOff overrides the reconnect policy. The factory is called once per Open.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackOff = newBackOff }
}

// Channel owns the push subscription for one room code and delivers its notifications,
// decoded and in arrival order, on Events. Connection health changes are delivered on the
// same channel as events.StatusChanged so they stay ordered with the notifications.
type Channel struct {
	code       string
	transport  Transport
	clock      clockwork.Clock
	config     Config
	newBackOff func() backoff.BackOff

	events chan events.Event

	mu     sync.Mutex
	status events.ConnectionStatus
	opened bool
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a channel for the given room code. Nothing is opened until Open.
func New(code string, transport Transport, opts ...Option) *Channel {
	c := &Channel{
		code:      code,
		transport: transport,
		clock:     clockwork.NewRealClock(),
		config:    DefaultConfig(),
		status:    events.StatusConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newBackOff == nil {
		c.newBackOff = c.defaultBackOff
	}
	if c.config.BufferSize <= 0 {
		c.config.BufferSize = DefaultConfig().BufferSize
	}
	c.events = make(chan events.Event, c.config.BufferSize)
	return c
}

func (c *Channel) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialInterval
	b.MaxInterval = c.config.MaxInterval
	b.MaxElapsedTime = 0
	b.Clock = c.clock
	b.Reset()
	return b
}

// Events returns the ordered event sequence. It is closed once the channel has shut down.
func (c *Channel) Events() <-chan events.Event { return c.events }

// Status returns the current connection health
func (c *Channel) Status() events.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Open starts the subscription in the background. Transport failures, including the
// first connect, are retried until Close or until ctx is done.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return ErrAlreadyOpen
	}
	c.opened = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	log.Info().
		Str("room_code", c.code).
		Str("transport", c.transport.Name()).
		Msg("opening room channel")

	go c.run(runCtx)
	return nil
}

// Close cancels the subscription and waits for the reader to exit. No event is delivered
// after Close returns. It is safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		for range c.events {
		}
	} else {
		close(c.events)
	}

	c.mu.Lock()
	c.status = events.StatusClosed
	c.mu.Unlock()

	log.Info().Str("room_code", c.code).Msg("room channel closed")
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)

	bo := c.newBackOff()
	attempt := 0
	everConnected := false

	for {
		connID := uuid.New().String()[:8]
		stream, err := c.transport.Subscribe(ctx, c.code)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			if !c.retry(ctx, bo, &TransportError{Code: c.code, Attempt: attempt, Err: err}) {
				return
			}
			continue
		}

		if everConnected {
			log.Warn().
				Str("room_code", c.code).
				Str("conn_id", connID).
				Msg("room channel reconnected; notifications published while disconnected may have been missed")
		}
		everConnected = true
		attempt = 0
		bo.Reset()

		if !c.setStatus(ctx, events.StatusConnected, 0, nil) {
			stream.Close()
			return
		}
		log.Info().
			Str("room_code", c.code).
			Str("conn_id", connID).
			Msg("room channel connected")

		err = c.pump(ctx, stream)
		if closeErr := stream.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Str("conn_id", connID).Msg("failed to close stream")
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		if !c.retry(ctx, bo, &TransportError{Code: c.code, Attempt: attempt, Err: err}) {
			return
		}
	}
}

// pump decodes notifications from one connection until it fails
func (c *Channel) pump(ctx context.Context, stream Stream) error {
	for {
		raw, err := stream.Next(ctx)
		if err != nil {
			return err
		}

		ev, err := events.Decode(raw.Name, raw.Data)
		if err != nil {
			if errors.Is(err, events.ErrUnknownEvent) {
				log.Debug().Str("room_code", c.code).Str("event", raw.Name).Msg("skipping unknown notification")
				continue
			}
			log.Warn().
				Err(err).
				Str("room_code", c.code).
				Str("event", raw.Name).
				Msg("dropping malformed notification")
			continue
		}

		if !c.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

// retry reports the failure, then waits out the next backoff interval
func (c *Channel) retry(ctx context.Context, bo backoff.BackOff, terr *TransportError) bool {
	log.Warn().
		Err(terr.Err).
		Str("room_code", c.code).
		Int("attempt", terr.Attempt).
		Msg("room channel transport error, reconnecting")

	if !c.setStatus(ctx, events.StatusReconnecting, terr.Attempt, terr) {
		return false
	}

	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		bo.Reset()
		wait = c.config.MaxInterval
	}

	timer := c.clock.NewTimer(wait)
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return false
	}
}

func (c *Channel) setStatus(ctx context.Context, status events.ConnectionStatus, attempt int, err error) bool {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	return c.emit(ctx, events.StatusChanged{
		Status:  status,
		Attempt: attempt,
		Err:     err,
		At:      c.clock.Now(),
	})
}

func (c *Channel) emit(ctx context.Context, ev events.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
