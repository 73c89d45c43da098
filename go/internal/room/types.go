package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/stopify/go/internal/room/events"
)

// RoomCodeLength is the fixed length of a room code
const RoomCodeLength = 4

// RoomCode identifies a room. Codes are case-insensitive on input and stored uppercase.
type RoomCode string

// NormalizeRoomCode trims, uppercases and validates a user or server supplied room code
func NormalizeRoomCode(s string) (RoomCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != RoomCodeLength {
		return "", fmt.Errorf("%w: %q must be %d characters", ErrInvalidRoomCode, s, RoomCodeLength)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidRoomCode, s, r)
		}
	}
	return RoomCode(code), nil
}

func (c RoomCode) String() string { return string(c) }

// PlayerID is the opaque server-assigned player identifier
type PlayerID string

// Player is one member of a room
type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

// roundNamespace scopes the deterministic round IDs
var roundNamespace = uuid.MustParse("6f1c2a57-4d0e-4b8f-9a53-2f7d1e0c9b44")

// RoundDescriptor describes one round. It never changes once adopted.
type RoundDescriptor struct {
	ID         uuid.UUID `json:"id"`
	RoomCode   RoomCode  `json:"roomCode"`
	Letter     string    `json:"letter"`
	Deadline   time.Time `json:"deadline"`
	Categories []string  `json:"categories"`
}

// NewRoundDescriptor builds a descriptor from a round.started payload. A payload without a
// room code belongs to fallback, the room the stream was opened for. The ID is derived from
// room, letter and deadline so redelivery of the same start maps to the same round.
func NewRoundDescriptor(p events.RoundStartedPayload, fallback RoomCode) (RoundDescriptor, error) {
	code := fallback
	if p.RoomCode != "" {
		normalized, err := NormalizeRoomCode(p.RoomCode)
		if err != nil {
			return RoundDescriptor{}, err
		}
		code = normalized
	}

	letter := strings.ToUpper(p.Letter)
	deadline := p.EndsAt.UTC()
	key := fmt.Sprintf("%s|%s|%s", code, letter, deadline.Format(time.RFC3339Nano))

	categories := make([]string, len(p.Categories))
	copy(categories, p.Categories)

	return RoundDescriptor{
		ID:         uuid.NewSHA1(roundNamespace, []byte(key)),
		RoomCode:   code,
		Letter:     letter,
		Deadline:   deadline,
		Categories: categories,
	}, nil
}

// HasCategory reports whether the label is one of the round's categories
func (r RoundDescriptor) HasCategory(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// AnswerSet maps category label to answer text
type AnswerSet map[string]string

// Clone returns an independent copy
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Filled counts answers that are not blank
func (a AnswerSet) Filled() int {
	n := 0
	for _, v := range a {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// SubmissionCause names the trigger that sealed a submission
type SubmissionCause string

const (
	CauseTimer        SubmissionCause = "timer"
	CauseUser         SubmissionCause = "user"
	CauseNotification SubmissionCause = "notification"
)

// SubmissionStatus is the outcome of the outbound call
type SubmissionStatus string

const (
	SubmissionOpen    SubmissionStatus = "open"
	SubmissionPending SubmissionStatus = "pending"
	SubmissionSent    SubmissionStatus = "sent"
	SubmissionFailed  SubmissionStatus = "failed"
)

// SubmissionRecord tracks the single submission allowed per round
type SubmissionRecord struct {
	RoundID     uuid.UUID        `json:"roundId"`
	Answers     AnswerSet        `json:"answers,omitempty"`
	Sealed      bool             `json:"sealed"`
	SubmittedAt time.Time        `json:"submittedAt"`
	Cause       SubmissionCause  `json:"cause,omitempty"`
	Status      SubmissionStatus `json:"status"`
	Err         error            `json:"-"`
}

// Ranking is one entry of a graded result
type Ranking struct {
	PlayerName string  `json:"playerName"`
	Score      float64 `json:"score"`
}

// ResultSet is the ranking in server order
type ResultSet []Ranking
