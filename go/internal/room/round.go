package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// RoundState is the lifecycle state of the current round
type RoundState string

const (
	RoundIdle      RoundState = "idle"
	RoundActive    RoundState = "active"
	RoundSubmitted RoundState = "submitted"
	RoundEnded     RoundState = "ended"
)

// RoundController drives the round lifecycle:
//
//	Idle -> Active           round start
//	Active -> Active         answer edit
//	Active -> Submitted      timer, user submit or termination notification
//	Submitted -> Ended       a later termination or redirect notification
//	Ended -> Active          next round start
//
// A round start in Active or Submitted replaces the round; the termination for the old one
// was lost. The controller is not safe for concurrent use.
type RoundController struct {
	clock   clockwork.Clock
	guard   *SubmissionGuard
	state   RoundState
	round   *RoundDescriptor
	answers AnswerSet
}

func NewRoundController(clock clockwork.Clock, guard *SubmissionGuard) *RoundController {
	return &RoundController{
		clock: clock,
		guard: guard,
		state: RoundIdle,
	}
}

func (c *RoundController) State() RoundState { return c.state }

// Round returns the adopted descriptor, if any
func (c *RoundController) Round() (RoundDescriptor, bool) {
	if c.round == nil {
		return RoundDescriptor{}, false
	}
	return *c.round, true
}

// Answers returns a copy of the working answers
func (c *RoundController) Answers() AnswerSet {
	return c.answers.Clone()
}

// Start adopts a new round. A redelivered start for the adopted round is a StateError.
func (c *RoundController) Start(round RoundDescriptor) error {
	if c.round != nil && c.round.ID == round.ID {
		return staleEvent(events.TypeRoundStarted, "round %s already adopted", round.ID)
	}

	if c.round != nil && (c.state == RoundActive || c.state == RoundSubmitted) {
		log.Warn().
			Str("room_code", c.round.RoomCode.String()).
			Str("abandoned_round", c.round.ID.String()).
			Str("abandoned_state", string(c.state)).
			Str("round_id", round.ID.String()).
			Msg("new round started before the previous one ended")
	}

	adopted := round
	c.round = &adopted
	c.state = RoundActive
	c.answers = make(AnswerSet, len(round.Categories))
	c.guard.Reset(round)

	log.Info().
		Str("room_code", round.RoomCode.String()).
		Str("round_id", round.ID.String()).
		Str("letter", round.Letter).
		Time("deadline", round.Deadline).
		Dur("remaining", c.Remaining()).
		Msg("round started")
	return nil
}

// EditAnswer sets the answer for one category while the round is active
func (c *RoundController) EditAnswer(category, text string) error {
	if c.state != RoundActive {
		return fmt.Errorf("edit %q: %w", category, ErrRoundNotActive)
	}
	if !c.round.HasCategory(category) {
		return fmt.Errorf("edit %q: %w", category, ErrUnknownCategory)
	}
	c.answers[category] = text
	return nil
}

// Remaining is max(0, deadline - now). It is recomputed from the clock on every call.
func (c *RoundController) Remaining() time.Duration {
	if c.round == nil {
		return 0
	}
	remaining := c.round.Deadline.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingSeconds is the whole seconds left, rounded down
func (c *RoundController) RemainingSeconds() int {
	return int(c.Remaining() / time.Second)
}

// Expired reports whether an active round has reached its deadline
func (c *RoundController) Expired() bool {
	return c.state == RoundActive && c.Remaining() == 0
}

// Submit seals the answers for the active round. It returns false when another trigger
// already submitted.
func (c *RoundController) Submit(cause SubmissionCause) (SubmissionRecord, bool, error) {
	if c.state != RoundActive {
		return SubmissionRecord{}, false, ErrRoundNotActive
	}

	rec, ok := c.guard.AttemptSubmit(*c.round, c.answers, cause)
	c.state = RoundSubmitted
	return rec, ok, nil
}

// Terminate applies a termination or redirect notification. In Active it submits first;
// in Submitted it ends the round.
func (c *RoundController) Terminate(p events.TerminationPayload) (SubmissionRecord, bool, error) {
	if c.round == nil || c.state == RoundIdle {
		return SubmissionRecord{}, false, staleEvent(p.Type, "no round in progress")
	}
	if p.RoomCode != "" && !strings.EqualFold(strings.TrimSpace(p.RoomCode), c.round.RoomCode.String()) {
		return SubmissionRecord{}, false, staleEvent(p.Type, "room %s is not %s", p.RoomCode, c.round.RoomCode)
	}
	if p.Letter != "" && !strings.EqualFold(p.Letter, c.round.Letter) {
		return SubmissionRecord{}, false, staleEvent(p.Type, "letter %s is not the current letter %s", p.Letter, c.round.Letter)
	}

	switch c.state {
	case RoundActive:
		return c.Submit(CauseNotification)
	case RoundSubmitted:
		c.state = RoundEnded
		log.Info().
			Str("round_id", c.round.ID.String()).
			Str("event", string(p.Type)).
			Msg("round ended")
		return SubmissionRecord{}, false, nil
	default:
		return SubmissionRecord{}, false, staleEvent(p.Type, "round %s already ended", c.round.ID)
	}
}
