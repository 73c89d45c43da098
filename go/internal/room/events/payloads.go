package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event payload types shared between the channel and room packages

// Event is a decoded notification from the room stream. Every payload type below is a
// variant; the room loop switches on the concrete type.
type Event interface {
	EventType() EventType
}

// PlayerJoinedPayload is the payload for a player.joined event
type PlayerJoinedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (PlayerJoinedPayload) EventType() EventType { return TypePlayerJoined }

// PlayerLeftPayload is the payload for a player.left event
type PlayerLeftPayload struct {
	ID string `json:"id"`
}

func (PlayerLeftPayload) EventType() EventType { return TypePlayerLeft }

// RoundStartedPayload is the payload for a round.started event
type RoundStartedPayload struct {
	RoomCode   string    `json:"roomCode"`
	Letter     string    `json:"letter"`
	EndsAt     time.Time `json:"endsAt"`
	Categories []string  `json:"categories"`
}

func (RoundStartedPayload) EventType() EventType { return TypeRoundStarted }

// UnmarshalJSON accepts "code" and "roomId" as aliases of "roomCode" and lenient ISO-8601
// timestamps, because the server is not consistent about either.
func (p *RoundStartedPayload) UnmarshalJSON(b []byte) error {
	var raw struct {
		RoomCode   string   `json:"roomCode"`
		Code       string   `json:"code"`
		RoomID     string   `json:"roomId"`
		Letter     string   `json:"letter"`
		EndsAt     string   `json:"endsAt"`
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	endsAt, err := ParseTimestamp(raw.EndsAt)
	if err != nil {
		return fmt.Errorf("parse endsAt: %w", err)
	}

	p.RoomCode = firstNonEmpty(raw.RoomCode, raw.Code, raw.RoomID)
	p.Letter = raw.Letter
	p.EndsAt = endsAt
	p.Categories = raw.Categories
	return nil
}

// RankingEntry is one line of a judge.result ranking
type RankingEntry struct {
	PlayerName string  `json:"playerName"`
	Score      float64 `json:"score"`
}

// JudgeResultPayload is the payload for a judge.result event
type JudgeResultPayload struct {
	Ranking []RankingEntry `json:"ranking"`
}

func (JudgeResultPayload) EventType() EventType { return TypeJudgeResult }

// TerminationPayload covers game.ended, round.ended, time.expired and redirect.result.
// None of them requires a body; RoomCode and Letter are only used for staleness checks
// when the server includes them.
type TerminationPayload struct {
	Type     EventType `json:"-"`
	RoomCode string    `json:"roomCode,omitempty"`
	Letter   string    `json:"letter,omitempty"`
}

func (p TerminationPayload) EventType() EventType { return p.Type }

// StatusChanged is emitted by the channel itself, in order with the notifications,
// whenever connection health changes.
type StatusChanged struct {
	Status  ConnectionStatus
	Attempt int
	Err     error
	At      time.Time
}

func (StatusChanged) EventType() EventType { return TypeStatusChanged }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are in local time,
// as a browser's Date would read them.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
