package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// EventType represents the name of a push notification on the room stream
type EventType string

const (
	TypePlayerJoined   EventType = "player.joined"
	TypePlayerLeft     EventType = "player.left"
	TypeRoundStarted   EventType = "round.started"
	TypeJudgeResult    EventType = "judge.result"
	TypeGameEnded      EventType = "game.ended"
	TypeRoundEnded     EventType = "round.ended"
	TypeTimeExpired    EventType = "time.expired"
	TypeRedirectResult EventType = "redirect.result"

	// TypeStatusChanged never arrives from the server
	TypeStatusChanged EventType = "channel.status"
)

// IsTermination reports whether the notification ends the current round
func (t EventType) IsTermination() bool {
	switch t {
	case TypeGameEnded, TypeRoundEnded, TypeTimeExpired, TypeRedirectResult:
		return true
	}
	return false
}

// ConnectionStatus is the health of a room channel, for display
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusClosed       ConnectionStatus = "closed"
)

// ErrUnknownEvent is returned by Decode for names this client does not handle
var ErrUnknownEvent = errors.New("unknown event type")

// DecodeError means a single notification had a malformed payload. The notification is
// dropped; the stream keeps going.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope is the framing used by message transports (WebSocket, NATS) that have no
// native event name. The outbox ("eventType"/"payload") and gateway ("type"/"data")
// forms are accepted as well.
type Envelope struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope splits an enveloped message into its event name and payload
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, &DecodeError{Event: "envelope", Err: errors.New("empty message")}
	}

	var raw struct {
		ID        string          `json:"id"`
		EventID   string          `json:"eventId"`
		Event     string          `json:"event"`
		EventType string          `json:"eventType"`
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Envelope{}, &DecodeError{Event: "envelope", Err: err}
	}

	env := Envelope{
		ID:    firstNonEmpty(raw.ID, raw.EventID),
		Event: firstNonEmpty(raw.Event, raw.EventType, raw.Type),
		Data:  raw.Data,
	}
	if len(env.Data) == 0 {
		env.Data = raw.Payload
	}
	if env.Event == "" {
		return Envelope{}, &DecodeError{Event: "envelope", Err: errors.New("missing event name")}
	}
	return env, nil
}

// Decode parses a named notification into its typed variant
func Decode(name string, data []byte) (Event, error) {
	t := EventType(name)

	switch t {
	case TypePlayerJoined:
		var p PlayerJoinedPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, &DecodeError{Event: name, Err: errors.New("missing id")}
		}
		return p, nil

	case TypePlayerLeft:
		var p PlayerLeftPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, &DecodeError{Event: name, Err: errors.New("missing id")}
		}
		return p, nil

	case TypeRoundStarted:
		var p RoundStartedPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(p.Letter) != 1 {
			return nil, &DecodeError{Event: name, Err: fmt.Errorf("letter %q is not a single character", p.Letter)}
		}
		if len(p.Categories) == 0 {
			return nil, &DecodeError{Event: name, Err: errors.New("no categories")}
		}
		return p, nil

	case TypeJudgeResult:
		var p JudgeResultPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if p.Ranking == nil {
			return nil, &DecodeError{Event: name, Err: errors.New("missing ranking")}
		}
		return p, nil

	default:
		if t.IsTermination() {
			return decodeTermination(t, data), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
}

// The body is optional; a malformed one still terminates the round.
func decodeTermination(t EventType, data []byte) TerminationPayload {
	p := TerminationPayload{Type: t}
	if len(data) > 0 {
		var body TerminationPayload
		if err := json.Unmarshal(data, &body); err == nil {
			p.RoomCode = body.RoomCode
			p.Letter = body.Letter
		}
	}
	return p
}

func unmarshal(name string, data []byte, v any) error {
	if len(data) == 0 {
		return &DecodeError{Event: name, Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Event: name, Err: err}
	}
	return nil
}
