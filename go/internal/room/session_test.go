package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/stopify/go/internal/room/channel"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ch     chan events.Event
	mu     sync.Mutex
	opened bool
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan events.Event, 32)}
}

func (f *fakeSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return nil
}

func (f *fakeSource) Events() <-chan events.Event { return f.ch }

func (f *fakeSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type submission struct {
	code     string
	letter   string
	playerID string
	answers  map[string]string
}

type fakeSubmitter struct {
	calls chan submission
	err   error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{calls: make(chan submission, 8)}
}

func (f *fakeSubmitter) SubmitAnswers(ctx context.Context, code, letter, playerID string, answers map[string]string) error {
	f.calls <- submission{code: code, letter: letter, playerID: playerID, answers: answers}
	return f.err
}

type sessionHarness struct {
	t         *testing.T
	clock     *clockwork.FakeClock
	source    *fakeSource
	submitter *fakeSubmitter
	session   *Session
	runErr    chan error
}

func startSession(t *testing.T, opts ...Option) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		t:         t,
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		source:    newFakeSource(),
		submitter: newFakeSubmitter(),
		runErr:    make(chan error, 1),
	}

	opts = append([]Option{WithClock(h.clock)}, opts...)
	h.session = NewSession(DefaultConfig("AB12", "p1"), h.source, h.submitter, opts...)
	go func() { h.runErr <- h.session.Run(context.Background()) }()
	t.Cleanup(h.session.Close)
	return h
}

func (h *sessionHarness) push(evs ...events.Event) {
	for _, ev := range evs {
		h.source.ch <- ev
	}
}

// waitFor polls published snapshots until cond holds
func (h *sessionHarness) waitFor(cond func(Snapshot) bool, msg string) Snapshot {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.session.Snapshot()) }, 2*time.Second, 5*time.Millisecond, msg)
	return h.session.Snapshot()
}

func (h *sessionHarness) nextSubmission() submission {
	h.t.Helper()
	select {
	case s := <-h.submitter.calls:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for submission")
		return submission{}
	}
}

func (h *sessionHarness) noSubmission() {
	h.t.Helper()
	select {
	case s := <-h.submitter.calls:
		h.t.Fatalf("unexpected second submission: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *sessionHarness) roundStarted(letter string, in time.Duration, categories ...string) events.RoundStartedPayload {
	return events.RoundStartedPayload{
		RoomCode:   "AB12",
		Letter:     letter,
		EndsAt:     h.clock.Now().Add(in),
		Categories: categories,
	}
}

func TestSessionMembership(t *testing.T) {
	h := startSession(t, WithInitialMembers([]Player{{ID: "p1", Name: "Me"}}))

	h.push(
		events.PlayerJoinedPayload{ID: "p1", Name: "Me"},
		events.PlayerJoinedPayload{ID: "p2", Name: "Ana"},
		events.PlayerJoinedPayload{ID: "p3", Name: "Bea"},
		events.PlayerLeftPayload{ID: "p2"},
	)

	snap := h.waitFor(func(s Snapshot) bool { return len(s.Members) == 2 && s.Members[1].ID == "p3" }, "membership")
	require.Equal(t, []Member{
		{Player: Player{ID: "p1", Name: "Me"}, IsSelf: true},
		{Player: Player{ID: "p3", Name: "Bea"}},
	}, snap.Members)
	require.True(t, snap.CanStart)

	h.push(events.PlayerLeftPayload{ID: "p3"})
	snap = h.waitFor(func(s Snapshot) bool { return len(s.Members) == 1 }, "leave")
	require.False(t, snap.CanStart)
}

func TestSessionUserSubmitThenTimerSubmitsOnce(t *testing.T) {
	h := startSession(t)
	ctx := context.Background()

	h.push(h.roundStarted("B", 60*time.Second, "Fruit", "City"))
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundActive }, "round active")

	require.NoError(t, h.session.EditAnswer(ctx, "Fruit", "Banana"))
	require.ErrorIs(t, h.session.EditAnswer(ctx, "Planet", "Mars"), ErrUnknownCategory)

	sent, err := h.session.Submit(ctx)
	require.NoError(t, err)
	require.True(t, sent)

	call := h.nextSubmission()
	require.Equal(t, "AB12", call.code)
	require.Equal(t, "B", call.letter)
	require.Equal(t, "p1", call.playerID)
	require.Equal(t, map[string]string{"Fruit": "Banana", "City": ""}, call.answers)

	snap := h.waitFor(func(s Snapshot) bool {
		return s.Submission != nil && s.Submission.Status == SubmissionSent
	}, "submission sent")
	require.Equal(t, RoundSubmitted, snap.RoundState)
	require.Equal(t, CauseUser, snap.Submission.Cause)
	require.Equal(t, 1, snap.Filled)
	require.Equal(t, 2, snap.Total)

	h.clock.Advance(2 * time.Minute)
	h.noSubmission()

	sent, err = h.session.Submit(ctx)
	require.ErrorIs(t, err, ErrRoundNotActive)
	require.False(t, sent)
}

func TestSessionDeadlineSubmits(t *testing.T) {
	h := startSession(t)
	ctx := context.Background()

	h.push(h.roundStarted("M", 10*time.Second, "Animal"))
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundActive }, "round active")
	require.NoError(t, h.session.EditAnswer(ctx, "Animal", "Moose"))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 2), "ticker and deadline timer armed")
	h.clock.Advance(3 * time.Second)
	snap := h.waitFor(func(s Snapshot) bool { return s.RemainingSeconds == 7 }, "countdown refresh")
	require.Equal(t, RoundActive, snap.RoundState)

	h.clock.Advance(7 * time.Second)
	call := h.nextSubmission()
	require.Equal(t, map[string]string{"Animal": "Moose"}, call.answers)

	// the termination notification that follows is not a second trigger
	h.push(events.TerminationPayload{Type: events.TypeTimeExpired})
	snap = h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundEnded }, "round ended")
	require.Equal(t, CauseTimer, snap.Submission.Cause)
	require.Equal(t, 0, snap.RemainingSeconds)
	h.noSubmission()
}

func TestSessionNotificationSubmitsThenEnds(t *testing.T) {
	h := startSession(t)

	h.push(
		h.roundStarted("K", time.Minute, "City"),
		events.TerminationPayload{Type: events.TypeTimeExpired},
	)
	h.nextSubmission()
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundSubmitted }, "submitted")

	h.push(events.TerminationPayload{Type: events.TypeGameEnded})
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundEnded }, "ended")

	h.clock.Advance(time.Hour)
	h.noSubmission()
}

func TestSessionSubmissionFailureIsSurfaced(t *testing.T) {
	h := startSession(t)
	h.submitter.err = errors.New("API returned status code: 500")

	h.push(h.roundStarted("K", time.Minute, "City"))
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundActive }, "round active")

	_, err := h.session.Submit(context.Background())
	require.NoError(t, err)
	h.nextSubmission()

	snap := h.waitFor(func(s Snapshot) bool {
		return s.Submission != nil && s.Submission.Status == SubmissionFailed
	}, "submission failed")
	require.Contains(t, snap.SubmissionError, "500")
	h.noSubmission()
}

func TestSessionResultsAndNextRound(t *testing.T) {
	h := startSession(t)

	h.push(
		h.roundStarted("B", time.Minute, "Fruit"),
		events.TerminationPayload{Type: events.TypeRoundEnded},
		events.TerminationPayload{Type: events.TypeGameEnded},
		events.JudgeResultPayload{Ranking: []events.RankingEntry{{PlayerName: "Ana", Score: 10}, {PlayerName: "Bea", Score: 7}}},
		events.JudgeResultPayload{Ranking: []events.RankingEntry{{PlayerName: "Bea", Score: 99}}},
	)
	h.nextSubmission()

	snap := h.waitFor(func(s Snapshot) bool { return len(s.Results) > 0 }, "results")
	require.Equal(t, ResultSet{{PlayerName: "Ana", Score: 10}, {PlayerName: "Bea", Score: 7}}, snap.Results)
	require.Equal(t, RoundEnded, snap.RoundState)

	h.push(h.roundStarted("C", 2*time.Minute, "Fruit", "City"))
	snap = h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundActive }, "next round")
	require.Nil(t, snap.Results)
	require.Empty(t, snap.Answers)
	require.Nil(t, snap.Submission)
	require.Equal(t, "C", snap.Round.Letter)
}

func TestSessionIgnoresStaleRoundStarts(t *testing.T) {
	h := startSession(t)
	ctx := context.Background()

	start := h.roundStarted("B", time.Minute, "Fruit")
	h.push(start)
	h.waitFor(func(s Snapshot) bool { return s.RoundState == RoundActive }, "round active")
	require.NoError(t, h.session.EditAnswer(ctx, "Fruit", "Banana"))

	other := h.roundStarted("Z", time.Minute, "Fruit")
	other.RoomCode = "OTH1"
	h.push(start, other, events.PlayerJoinedPayload{ID: "p9", Name: "Marker"})

	// notifications are processed in order, so the marker means both starts were handled
	snap := h.waitFor(func(s Snapshot) bool { return len(s.Members) == 1 }, "marker")
	require.Equal(t, "B", snap.Round.Letter)
	require.Equal(t, AnswerSet{"Fruit": "Banana"}, snap.Answers)
}

func TestSessionConnectionStatus(t *testing.T) {
	h := startSession(t)

	h.push(events.StatusChanged{Status: events.StatusConnected})
	h.waitFor(func(s Snapshot) bool { return s.Healthy() }, "connected")

	terr := &channel.TransportError{Code: "AB12", Attempt: 1, Err: errors.New("EOF")}
	h.push(events.StatusChanged{Status: events.StatusReconnecting, Attempt: 1, Err: terr})
	snap := h.waitFor(func(s Snapshot) bool { return s.Connection == events.StatusReconnecting }, "reconnecting")
	require.Contains(t, snap.LastError, "attempt 1")

	h.push(events.StatusChanged{Status: events.StatusConnected})
	snap = h.waitFor(func(s Snapshot) bool { return s.Healthy() }, "reconnected")
	require.Empty(t, snap.LastError)
}

func TestSessionClose(t *testing.T) {
	var mu sync.Mutex
	var observed []Snapshot
	h := startSession(t, WithObserver(func(s Snapshot) {
		mu.Lock()
		observed = append(observed, s)
		mu.Unlock()
	}))

	h.push(
		h.roundStarted("B", time.Minute, "Fruit"),
		events.TerminationPayload{Type: events.TypeGameEnded},
		events.JudgeResultPayload{Ranking: []events.RankingEntry{{PlayerName: "Ana", Score: 1}}},
	)
	h.waitFor(func(s Snapshot) bool { return len(s.Results) == 1 }, "results")

	h.session.Close()
	require.NoError(t, <-h.runErr)
	require.True(t, h.source.isClosed())

	snap := h.session.Snapshot()
	require.Equal(t, events.StatusClosed, snap.Connection)
	require.Nil(t, snap.Results)

	_, err := h.session.Submit(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, h.session.Run(context.Background()), ErrSessionClosed)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	require.Equal(t, events.StatusClosed, observed[len(observed)-1].Connection)
}

func TestSessionCloseBeforeRun(t *testing.T) {
	source := newFakeSource()
	s := NewSession(DefaultConfig("AB12", "p1"), source, newFakeSubmitter())
	s.Close()

	require.True(t, source.isClosed())
	require.ErrorIs(t, s.Run(context.Background()), ErrSessionClosed)
	require.ErrorIs(t, s.EditAnswer(context.Background(), "Fruit", "x"), ErrSessionClosed)
}
