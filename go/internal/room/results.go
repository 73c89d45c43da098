package room

import (
	"github.com/mcdev12/stopify/go/internal/room/events"
)

// ResultAggregator holds the ranking for the current round cycle
type ResultAggregator struct {
	results  ResultSet
	captured bool
}

func NewResultAggregator() *ResultAggregator {
	return &ResultAggregator{}
}

// Capture stores the first graded result of the cycle in server order. Later results
// in the same cycle are rejected with a StateError.
func (a *ResultAggregator) Capture(p events.JudgeResultPayload) error {
	if a.captured {
		return staleEvent(events.TypeJudgeResult, "result already captured for this round")
	}

	results := make(ResultSet, 0, len(p.Ranking))
	for _, entry := range p.Ranking {
		results = append(results, Ranking{PlayerName: entry.PlayerName, Score: entry.Score})
	}
	a.results = results
	a.captured = true
	return nil
}

// Results returns a copy of the captured ranking, or nil before grading
func (a *ResultAggregator) Results() ResultSet {
	if !a.captured {
		return nil
	}
	out := make(ResultSet, len(a.results))
	copy(out, a.results)
	return out
}

func (a *ResultAggregator) Captured() bool { return a.captured }

// Clear forgets the ranking. Called on the next round start and on room exit.
func (a *ResultAggregator) Clear() {
	a.results = nil
	a.captured = false
}
