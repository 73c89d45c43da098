package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/stopify/go/internal/room/channel"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// EventSource is what the session needs from a room channel
type EventSource interface {
	Open(ctx context.Context) error
	Events() <-chan events.Event
	Close()
}

// Submitter performs the outbound answer submission
type Submitter interface {
	SubmitAnswers(ctx context.Context, code, letter, playerID string, answers map[string]string) error
}

// Config holds per-session settings
type Config struct {
	RoomCode      RoomCode
	SelfID        PlayerID
	TickInterval  time.Duration
	SubmitTimeout time.Duration
}

// DefaultConfig returns a config for the given room and player
func DefaultConfig(code RoomCode, self PlayerID) Config {
	return Config{
		RoomCode:      code,
		SelfID:        self,
		TickInterval:  time.Second,
		SubmitTimeout: 15 * time.Second,
	}
}

// Observer is called from the session loop with every published snapshot. It must not
// block.
type Observer func(Snapshot)

// Option configures a Session
type Option func(*Session)

// WithClock sets the clock driving the countdown and deadline
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithObserver registers a snapshot observer
func WithObserver(observer Observer) Option {
	return func(s *Session) { s.observer = observer }
}

// WithInitialMembers seeds the roster fetched before the stream opened
func WithInitialMembers(players []Player) Option {
	return func(s *Session) { s.initial = players }
}

// Session owns one player's view of a room. All state is mutated by the goroutine in Run;
// other goroutines talk to it through the inbox and read published snapshots.
type Session struct {
	cfg       Config
	source    EventSource
	submitter Submitter
	clock     clockwork.Clock
	observer  Observer
	initial   []Player

	members *MembershipTracker
	round   *RoundController
	guard   *SubmissionGuard
	results *ResultAggregator
	status  events.ConnectionStatus
	lastErr error

	ticker   clockwork.Ticker
	deadline clockwork.Timer

	inbox    chan any
	snapshot atomic.Pointer[Snapshot]

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type editAnswerCmd struct {
	category string
	text     string
	reply    chan error
}

type submitReply struct {
	sent bool
	err  error
}

type submitCmd struct {
	reply chan submitReply
}

type submitResult struct {
	roundID uuid.UUID
	err     error
}

// NewSession creates a session for one room. Call Run to start processing.
func NewSession(cfg Config, source EventSource, submitter Submitter, opts ...Option) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}

	s := &Session{
		cfg:       cfg,
		source:    source,
		submitter: submitter,
		clock:     clockwork.NewRealClock(),
		status:    events.StatusConnecting,
		inbox:     make(chan any, 16),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.members = NewMembershipTracker()
	s.members.Seed(s.initial)
	s.guard = NewSubmissionGuard(s.clock, s.dispatch)
	s.round = NewRoundController(s.clock, s.guard)
	s.results = NewResultAggregator()

	s.snapshot.Store(s.buildSnapshot())
	return s
}

// Snapshot returns the latest published view
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Done is closed once the session loop has exited
func (s *Session) Done() <-chan struct{} { return s.done }

// Run opens the room channel and processes events until ctx is done or Close is called
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionRunning
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer s.teardown()

	if err := s.source.Open(ctx); err != nil {
		return fmt.Errorf("open room channel: %w", err)
	}

	log.Info().
		Str("room_code", s.cfg.RoomCode.String()).
		Str("player_id", string(s.cfg.SelfID)).
		Msg("session started")

	evCh := s.source.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-evCh:
			if !ok {
				evCh = nil
				continue
			}
			s.handleEvent(ev)

		case <-s.tickerChan():
			if s.round.Expired() {
				s.submitRound(CauseTimer)
			}

		case <-s.deadlineChan():
			s.deadline = nil
			s.submitRound(CauseTimer)

		case cmd := <-s.inbox:
			s.handleCommand(cmd)
		}

		s.publish()
	}
}

// Close stops the loop, cancels the subscription and timers and waits for the loop to
// exit. Results are cleared. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if started {
		cancel()
		<-s.done
		return
	}

	s.teardown()
	close(s.done)
}

// EditAnswer sets the answer for a category of the active round
func (s *Session) EditAnswer(ctx context.Context, category, text string) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, editAnswerCmd{category: category, text: text, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// Submit submits the current answers on the user's behalf. It returns false without error
// when another trigger already submitted this round.
func (s *Session) Submit(ctx context.Context) (bool, error) {
	reply := make(chan submitReply, 1)
	if err := s.send(ctx, submitCmd{reply: reply}); err != nil {
		return false, err
	}
	select {
	case r := <-reply:
		return r.sent, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrSessionClosed
	}
}

func (s *Session) send(ctx context.Context, cmd any) error {
	select {
	case s.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) handleEvent(ev events.Event) {
	switch ev := ev.(type) {
	case events.StatusChanged:
		s.status = ev.Status
		if ev.Err != nil {
			s.lastErr = ev.Err
		} else if ev.Status == events.StatusConnected {
			var terr *channel.TransportError
			if errors.As(s.lastErr, &terr) {
				s.lastErr = nil
			}
		}

	case events.PlayerJoinedPayload:
		player := Player{ID: PlayerID(ev.ID), Name: ev.Name}
		if s.members.Join(player) {
			log.Info().Str("room_code", s.cfg.RoomCode.String()).Str("player_id", ev.ID).Str("name", ev.Name).Msg("player joined")
		}

	case events.PlayerLeftPayload:
		if s.members.Leave(PlayerID(ev.ID)) {
			log.Info().Str("room_code", s.cfg.RoomCode.String()).Str("player_id", ev.ID).Msg("player left")
		}

	case events.RoundStartedPayload:
		s.startRound(ev)

	case events.JudgeResultPayload:
		if err := s.results.Capture(ev); err != nil {
			s.ignore(err)
			return
		}
		log.Info().
			Str("room_code", s.cfg.RoomCode.String()).
			Int("entries", len(ev.Ranking)).
			Msg("results received")

	case events.TerminationPayload:
		_, _, err := s.round.Terminate(ev)
		if err != nil {
			s.ignore(err)
			return
		}
		if s.round.State() != RoundActive {
			s.stopTimers()
		}
	}
}

func (s *Session) startRound(p events.RoundStartedPayload) {
	round, err := NewRoundDescriptor(p, s.cfg.RoomCode)
	if err != nil {
		s.ignore(&StateError{Event: events.TypeRoundStarted, Reason: err.Error()})
		return
	}
	if round.RoomCode != s.cfg.RoomCode {
		s.ignore(staleEvent(events.TypeRoundStarted, "round for room %s", round.RoomCode))
		return
	}
	if err := s.round.Start(round); err != nil {
		s.ignore(err)
		return
	}

	s.results.Clear()
	s.armTimers()
}

func (s *Session) handleCommand(cmd any) {
	switch cmd := cmd.(type) {
	case editAnswerCmd:
		cmd.reply <- s.round.EditAnswer(cmd.category, cmd.text)

	case submitCmd:
		sent, err := s.submitRound(CauseUser)
		cmd.reply <- submitReply{sent: sent, err: err}

	case submitResult:
		s.guard.Complete(cmd.roundID, cmd.err)
	}
}

func (s *Session) submitRound(cause SubmissionCause) (bool, error) {
	_, sent, err := s.round.Submit(cause)
	if err != nil {
		return false, err
	}
	s.stopTimers()
	return sent, nil
}

// dispatch runs the outbound call off the loop. The call is detached from the session
// lifetime so leaving right after the deadline still delivers the answers; its result is
// dropped once the loop has exited.
func (s *Session) dispatch(round RoundDescriptor, rec SubmissionRecord) {
	answers := make(map[string]string, len(rec.Answers))
	for k, v := range rec.Answers {
		answers[k] = v
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
		defer cancel()

		err := s.submitter.SubmitAnswers(ctx, round.RoomCode.String(), round.Letter, string(s.cfg.SelfID), answers)
		select {
		case s.inbox <- submitResult{roundID: rec.RoundID, err: err}:
		case <-s.done:
			log.Debug().Str("round_id", rec.RoundID.String()).Msg("session closed before submission result")
		}
	}()
}

func (s *Session) armTimers() {
	s.stopTimers()
	s.ticker = s.clock.NewTicker(s.cfg.TickInterval)
	s.deadline = s.clock.NewTimer(s.round.Remaining())
}

func (s *Session) stopTimers() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.deadline != nil {
		stopAndDrainTimer(s.deadline)
		s.deadline = nil
	}
}

func (s *Session) tickerChan() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.Chan()
}

func (s *Session) deadlineChan() <-chan time.Time {
	if s.deadline == nil {
		return nil
	}
	return s.deadline.Chan()
}

func (s *Session) ignore(err error) {
	log.Debug().Err(err).Str("room_code", s.cfg.RoomCode.String()).Msg("ignoring notification")
}

func (s *Session) teardown() {
	s.stopTimers()
	s.source.Close()
	s.results.Clear()
	s.status = events.StatusClosed
	s.publish()

	log.Info().Str("room_code", s.cfg.RoomCode.String()).Msg("session closed")
}

func (s *Session) publish() {
	snap := s.buildSnapshot()
	s.snapshot.Store(snap)
	if s.observer != nil {
		s.observer(*snap)
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
