package room

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/stretchr/testify/require"
)

type dispatched struct {
	round RoundDescriptor
	rec   SubmissionRecord
}

func newTestController(t *testing.T) (*RoundController, *SubmissionGuard, *clockwork.FakeClock, *[]dispatched) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	calls := &[]dispatched{}
	guard := NewSubmissionGuard(clock, func(round RoundDescriptor, rec SubmissionRecord) {
		*calls = append(*calls, dispatched{round: round, rec: rec})
	})
	return NewRoundController(clock, guard), guard, clock, calls
}

func testRound(t *testing.T, clock clockwork.Clock, letter string, in time.Duration, categories ...string) RoundDescriptor {
	t.Helper()
	round, err := NewRoundDescriptor(events.RoundStartedPayload{
		RoomCode:   "ab12",
		Letter:     letter,
		EndsAt:     clock.Now().Add(in),
		Categories: categories,
	}, "AB12")
	require.NoError(t, err)
	return round
}

func TestRoundDescriptorIdentity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := testRound(t, clock, "b", time.Minute, "Fruit")
	b := testRound(t, clock, "B", time.Minute, "Fruit", "City")
	c := testRound(t, clock, "B", 2*time.Minute, "Fruit")

	require.Equal(t, RoomCode("AB12"), a.RoomCode)
	require.Equal(t, "B", a.Letter)
	require.Equal(t, a.ID, b.ID, "same room, letter and deadline is the same round")
	require.NotEqual(t, a.ID, c.ID)
}

func TestNormalizeRoomCode(t *testing.T) {
	code, err := NormalizeRoomCode("  ab1c ")
	require.NoError(t, err)
	require.Equal(t, RoomCode("AB1C"), code)

	for _, bad := range []string{"", "AB1", "AB12C", "AB-1", "AB12CD"} {
		_, err := NormalizeRoomCode(bad)
		require.ErrorIs(t, err, ErrInvalidRoomCode, bad)
	}
}

func TestRoundLifecycle(t *testing.T) {
	c, _, clock, calls := newTestController(t)
	require.Equal(t, RoundIdle, c.State())
	require.ErrorIs(t, c.EditAnswer("Fruit", "x"), ErrRoundNotActive)

	round := testRound(t, clock, "B", 60*time.Second, "Fruit", "City")
	require.NoError(t, c.Start(round))
	require.Equal(t, RoundActive, c.State())

	require.NoError(t, c.EditAnswer("Fruit", "Banana"))
	require.ErrorIs(t, c.EditAnswer("Color", "Blue"), ErrUnknownCategory)

	rec, sent, err := c.Submit(CauseUser)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, AnswerSet{"Fruit": "Banana", "City": ""}, rec.Answers)
	require.Equal(t, RoundSubmitted, c.State())
	require.ErrorIs(t, c.EditAnswer("City", "Berlin"), ErrRoundNotActive)

	// the timer firing later must not produce a second submission
	clock.Advance(time.Minute)
	_, sent, err = c.Submit(CauseTimer)
	require.ErrorIs(t, err, ErrRoundNotActive)
	require.False(t, sent)

	_, _, err = c.Terminate(events.TerminationPayload{Type: events.TypeRoundEnded})
	require.NoError(t, err)
	require.Equal(t, RoundEnded, c.State())
	require.Len(t, *calls, 1)
	require.Equal(t, CauseUser, (*calls)[0].rec.Cause)
}

func TestRoundTerminationSubmitsThenEnds(t *testing.T) {
	c, guard, clock, calls := newTestController(t)
	require.NoError(t, c.Start(testRound(t, clock, "K", 30*time.Second, "Animal")))

	rec, sent, err := c.Terminate(events.TerminationPayload{Type: events.TypeTimeExpired})
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, CauseNotification, rec.Cause)
	require.Equal(t, RoundSubmitted, c.State(), "the notification that submitted does not also end the round")

	_, sent, err = c.Terminate(events.TerminationPayload{Type: events.TypeRedirectResult})
	require.NoError(t, err)
	require.False(t, sent)
	require.Equal(t, RoundEnded, c.State())

	_, _, err = c.Terminate(events.TerminationPayload{Type: events.TypeGameEnded})
	require.ErrorIs(t, err, ErrStaleEvent)

	record, ok := guard.Record()
	require.True(t, ok)
	require.True(t, record.Sealed)
	require.Len(t, *calls, 1)
}

func TestRoundRedirectWhileActiveSubmits(t *testing.T) {
	c, _, clock, calls := newTestController(t)
	require.NoError(t, c.Start(testRound(t, clock, "K", 30*time.Second, "Animal")))

	_, sent, err := c.Terminate(events.TerminationPayload{Type: events.TypeRedirectResult})
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, *calls, 1)
}

func TestRoundTerminationStaleness(t *testing.T) {
	c, _, clock, calls := newTestController(t)

	_, _, err := c.Terminate(events.TerminationPayload{Type: events.TypeGameEnded})
	require.ErrorIs(t, err, ErrStaleEvent, "nothing to terminate while idle")

	require.NoError(t, c.Start(testRound(t, clock, "K", 30*time.Second, "Animal")))

	_, _, err = c.Terminate(events.TerminationPayload{Type: events.TypeTimeExpired, Letter: "Q"})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, events.TypeTimeExpired, stateErr.Event)

	_, _, err = c.Terminate(events.TerminationPayload{Type: events.TypeTimeExpired, RoomCode: "ZZ99"})
	require.ErrorIs(t, err, ErrStaleEvent)
	require.Equal(t, RoundActive, c.State())

	_, sent, err := c.Terminate(events.TerminationPayload{Type: events.TypeTimeExpired, RoomCode: "ab12", Letter: "k"})
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, *calls, 1)
}

func TestRoundDuplicateStartIsStale(t *testing.T) {
	c, _, clock, _ := newTestController(t)
	round := testRound(t, clock, "B", time.Minute, "Fruit")
	require.NoError(t, c.Start(round))
	require.NoError(t, c.EditAnswer("Fruit", "Banana"))

	require.ErrorIs(t, c.Start(round), ErrStaleEvent)
	require.Equal(t, AnswerSet{"Fruit": "Banana"}, c.Answers(), "redelivery must not reset answers")
}

func TestRoundNewStartAfterEndedIsFresh(t *testing.T) {
	c, guard, clock, calls := newTestController(t)
	require.NoError(t, c.Start(testRound(t, clock, "B", time.Minute, "Fruit")))
	require.NoError(t, c.EditAnswer("Fruit", "Banana"))
	_, _, err := c.Submit(CauseUser)
	require.NoError(t, err)
	_, _, err = c.Terminate(events.TerminationPayload{Type: events.TypeRoundEnded})
	require.NoError(t, err)
	require.Equal(t, RoundEnded, c.State())

	next := testRound(t, clock, "C", 2*time.Minute, "Fruit", "City")
	require.NoError(t, c.Start(next))
	require.Equal(t, RoundActive, c.State())
	require.Empty(t, c.Answers())

	record, ok := guard.Record()
	require.True(t, ok)
	require.False(t, record.Sealed)
	require.Equal(t, next.ID, record.RoundID)

	_, sent, err := c.Submit(CauseTimer)
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, *calls, 2)
}

func TestRoundStartWhileActiveAdoptsNewRound(t *testing.T) {
	c, _, clock, calls := newTestController(t)
	require.NoError(t, c.Start(testRound(t, clock, "B", time.Minute, "Fruit")))
	require.NoError(t, c.EditAnswer("Fruit", "Banana"))

	next := testRound(t, clock, "C", 2*time.Minute, "Fruit")
	require.NoError(t, c.Start(next))

	round, ok := c.Round()
	require.True(t, ok)
	require.Equal(t, next.ID, round.ID)
	require.Empty(t, c.Answers())
	require.Empty(t, *calls)
}

func TestRoundCountdown(t *testing.T) {
	c, _, clock, _ := newTestController(t)
	require.Equal(t, time.Duration(0), c.Remaining())

	require.NoError(t, c.Start(testRound(t, clock, "B", 60*time.Second, "Fruit")))
	require.Equal(t, 60, c.RemainingSeconds())

	clock.Advance(1500 * time.Millisecond)
	require.Equal(t, 58500*time.Millisecond, c.Remaining())
	require.Equal(t, 58, c.RemainingSeconds(), "whole seconds round down")

	// a long stall is recovered from the absolute deadline, not by counting ticks
	last := c.Remaining()
	clock.Advance(40 * time.Second)
	require.LessOrEqual(t, c.Remaining(), last)
	require.Equal(t, 18500*time.Millisecond, c.Remaining())
	require.False(t, c.Expired())

	clock.Advance(time.Hour)
	require.Equal(t, time.Duration(0), c.Remaining())
	require.True(t, c.Expired())
}
