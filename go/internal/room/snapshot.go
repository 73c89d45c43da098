package room

import (
	"time"

	"github.com/mcdev12/stopify/go/internal/room/events"
)

// MinPlayersToStart is the lobby threshold for starting a game
const MinPlayersToStart = 2

// Member is a player as shown to the local user
type Member struct {
	Player
	IsSelf bool `json:"isSelf"`
}

// Snapshot is an immutable view of a session for displays. A new one is published after
// every change; readers never see partial updates.
type Snapshot struct {
	RoomCode         RoomCode                `json:"roomCode"`
	SelfID           PlayerID                `json:"selfId"`
	Connection       events.ConnectionStatus `json:"connection"`
	Members          []Member                `json:"members"`
	CanStart         bool                    `json:"canStart"`
	RoundState       RoundState              `json:"roundState"`
	Round            *RoundDescriptor        `json:"round,omitempty"`
	RemainingSeconds int                     `json:"remainingSeconds"`
	Answers          AnswerSet               `json:"answers,omitempty"`
	Filled           int                     `json:"filled"`
	Total            int                     `json:"total"`
	Submission       *SubmissionRecord       `json:"submission,omitempty"`
	SubmissionError  string                  `json:"submissionError,omitempty"`
	Results          ResultSet               `json:"results,omitempty"`
	LastError        string                  `json:"lastError,omitempty"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// Healthy reports whether the session is connected to its room stream
func (s Snapshot) Healthy() bool {
	return s.Connection == events.StatusConnected
}

func (s *Session) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		RoomCode:   s.cfg.RoomCode,
		SelfID:     s.cfg.SelfID,
		Connection: s.status,
		RoundState: s.round.State(),
		Results:    s.results.Results(),
		UpdatedAt:  s.clock.Now(),
	}

	players := s.members.Members()
	snap.Members = make([]Member, len(players))
	for i, p := range players {
		snap.Members[i] = Member{Player: p, IsSelf: s.cfg.SelfID != "" && p.ID == s.cfg.SelfID}
	}
	snap.CanStart = len(players) >= MinPlayersToStart

	if round, ok := s.round.Round(); ok {
		snap.Round = &round
		snap.Total = len(round.Categories)

		answers := s.round.Answers()
		if rec, ok := s.guard.Record(); ok && rec.Sealed {
			answers = rec.Answers
			snap.Submission = &rec
			if rec.Err != nil {
				snap.SubmissionError = rec.Err.Error()
			}
		}
		snap.Answers = answers
		snap.Filled = answers.Filled()

		switch snap.RoundState {
		case RoundActive, RoundSubmitted:
			snap.RemainingSeconds = s.round.RemainingSeconds()
		}
	}

	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
