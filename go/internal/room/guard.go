package room

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Dispatcher performs the outbound submission for a sealed record. It must not block;
// the outcome is reported back through SubmissionGuard.Complete.
type Dispatcher func(round RoundDescriptor, rec SubmissionRecord)

// SubmissionGuard allows at most one submission per round. It is not safe for concurrent
// use; the session loop is its only caller, which makes the seal check-and-set atomic.
type SubmissionGuard struct {
	clock    clockwork.Clock
	dispatch Dispatcher
	round    RoundDescriptor
	current  *SubmissionRecord
}

func NewSubmissionGuard(clock clockwork.Clock, dispatch Dispatcher) *SubmissionGuard {
	return &SubmissionGuard{clock: clock, dispatch: dispatch}
}

// Reset starts a fresh unsealed record for the round
func (g *SubmissionGuard) Reset(round RoundDescriptor) {
	g.round = round
	g.current = &SubmissionRecord{
		RoundID: round.ID,
		Status:  SubmissionOpen,
	}
}

// AttemptSubmit seals the record for round and dispatches it. Only the first call for the
// current round returns true; every other call is a no-op.
func (g *SubmissionGuard) AttemptSubmit(round RoundDescriptor, answers AnswerSet, cause SubmissionCause) (SubmissionRecord, bool) {
	if g.current == nil || g.current.RoundID != round.ID {
		log.Debug().
			Str("round_id", round.ID.String()).
			Str("cause", string(cause)).
			Msg("submission attempt for a round that is not current")
		return SubmissionRecord{}, false
	}
	if g.current.Sealed {
		log.Debug().
			Str("round_id", round.ID.String()).
			Str("cause", string(cause)).
			Str("sealed_by", string(g.current.Cause)).
			Msg("submission already sealed")
		return SubmissionRecord{}, false
	}

	frozen := make(AnswerSet, len(round.Categories))
	for _, category := range round.Categories {
		frozen[category] = answers[category]
	}

	g.current.Sealed = true
	g.current.Answers = frozen
	g.current.SubmittedAt = g.clock.Now()
	g.current.Cause = cause
	g.current.Status = SubmissionPending

	rec := g.snapshot()
	log.Info().
		Str("round_id", round.ID.String()).
		Str("room_code", round.RoomCode.String()).
		Str("cause", string(cause)).
		Int("filled", frozen.Filled()).
		Msg("submission sealed")

	if g.dispatch != nil {
		g.dispatch(round, rec)
	}
	return rec, true
}

// Complete records the outcome of the outbound call. Results for a round that is no
// longer current are dropped and false is returned.
func (g *SubmissionGuard) Complete(roundID uuid.UUID, err error) bool {
	if g.current == nil || g.current.RoundID != roundID || !g.current.Sealed {
		log.Debug().Str("round_id", roundID.String()).Msg("dropping late submission result")
		return false
	}

	if err != nil {
		g.current.Status = SubmissionFailed
		g.current.Err = &SubmissionError{RoundID: roundID, Err: err}
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("answer submission failed")
		return true
	}

	g.current.Status = SubmissionSent
	g.current.Err = nil
	log.Info().Str("round_id", roundID.String()).Msg("answers submitted")
	return true
}

// Record returns a copy of the current record, if a round has started
func (g *SubmissionGuard) Record() (SubmissionRecord, bool) {
	if g.current == nil {
		return SubmissionRecord{}, false
	}
	return g.snapshot(), true
}

func (g *SubmissionGuard) snapshot() SubmissionRecord {
	rec := *g.current
	if rec.Answers != nil {
		rec.Answers = rec.Answers.Clone()
	}
	return rec
}
