package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeRoundStarted(t *testing.T) {
	data := []byte(`{"roomCode":"AB12","letter":"M","endsAt":"2025-03-01T12:01:00.250Z","categories":["Animal","City"]}`)
	ev, err := Decode("round.started", data)
	require.NoError(t, err)

	p, ok := ev.(RoundStartedPayload)
	require.True(t, ok)
	require.Equal(t, "AB12", p.RoomCode)
	require.Equal(t, "M", p.Letter)
	require.Equal(t, []string{"Animal", "City"}, p.Categories)
	require.True(t, p.EndsAt.Equal(time.Date(2025, 3, 1, 12, 1, 0, 250_000_000, time.UTC)))
	require.Equal(t, TypeRoundStarted, ev.EventType())
}

func TestDecodeRoundStartedRoomAliases(t *testing.T) {
	for _, key := range []string{"code", "roomId"} {
		data := []byte(`{"` + key + `":"XY78","letter":"a","endsAt":"2025-03-01T12:01:00","categories":["Food"]}`)
		ev, err := Decode("round.started", data)
		require.NoError(t, err, key)

		p := ev.(RoundStartedPayload)
		require.Equal(t, "XY78", p.RoomCode, key)
	}
}

func TestParseTimestampWithoutZoneIsLocal(t *testing.T) {
	local := time.Local
	time.Local = time.FixedZone("BRT", -3*60*60)
	t.Cleanup(func() { time.Local = local })

	ts, err := ParseTimestamp("2025-03-01T12:01:00")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2025, 3, 1, 15, 1, 0, 0, time.UTC)), ts)

	ts, err = ParseTimestamp("2025-03-01T12:01:00Z")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)), ts)

	ts, err = ParseTimestamp("2025-03-01T12:01:00.5-0300")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2025, 3, 1, 15, 1, 0, 500_000_000, time.UTC)), ts)
}

func TestDecodeRoundStartedRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"two letters":   `{"roomCode":"AB12","letter":"MN","endsAt":"2025-03-01T12:01:00Z","categories":["A"]}`,
		"no categories": `{"roomCode":"AB12","letter":"M","endsAt":"2025-03-01T12:01:00Z","categories":[]}`,
		"bad deadline":  `{"roomCode":"AB12","letter":"M","endsAt":"soon","categories":["A"]}`,
		"not json":      `{"roomCode":`,
		"empty":         ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode("round.started", []byte(body))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.Equal(t, "round.started", decodeErr.Event)
		})
	}
}

func TestDecodeMembership(t *testing.T) {
	ev, err := Decode("player.joined", []byte(`{"id":"p1","name":"Ana"}`))
	require.NoError(t, err)
	require.Equal(t, PlayerJoinedPayload{ID: "p1", Name: "Ana"}, ev)

	ev, err = Decode("player.left", []byte(`{"id":"p1"}`))
	require.NoError(t, err)
	require.Equal(t, PlayerLeftPayload{ID: "p1"}, ev)

	_, err = Decode("player.joined", []byte(`{"name":"NoID"}`))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecodeJudgeResultKeepsOrder(t *testing.T) {
	ev, err := Decode("judge.result", []byte(`{"ranking":[{"playerName":"Zoe","score":3},{"playerName":"Ana","score":9}]}`))
	require.NoError(t, err)

	p := ev.(JudgeResultPayload)
	require.Equal(t, []RankingEntry{{PlayerName: "Zoe", Score: 3}, {PlayerName: "Ana", Score: 9}}, p.Ranking)

	ev, err = Decode("judge.result", []byte(`{"ranking":[{"playerName":"Zoe","score":7.5}]}`))
	require.NoError(t, err)
	require.Equal(t, 7.5, ev.(JudgeResultPayload).Ranking[0].Score)

	_, err = Decode("judge.result", []byte(`{}`))
	require.Error(t, err)
}

func TestDecodeTermination(t *testing.T) {
	for _, name := range []EventType{TypeGameEnded, TypeRoundEnded, TypeTimeExpired, TypeRedirectResult} {
		ev, err := Decode(string(name), nil)
		require.NoError(t, err)
		require.Equal(t, name, ev.EventType())
		require.True(t, ev.EventType().IsTermination())
	}

	ev, err := Decode("time.expired", []byte(`{"roomCode":"AB12","letter":"K"}`))
	require.NoError(t, err)
	require.Equal(t, TerminationPayload{Type: TypeTimeExpired, RoomCode: "AB12", Letter: "K"}, ev)

	ev, err = Decode("game.ended", []byte(`garbage`))
	require.NoError(t, err, "body is optional")
	require.Equal(t, TypeGameEnded, ev.EventType())

	require.False(t, TypePlayerJoined.IsTermination())
}

func TestDecodeUnknown(t *testing.T) {
	_, err := Decode("chat.message", []byte(`{}`))
	require.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"player.left","data":{"id":"p2"}}`))
	require.NoError(t, err)
	require.Equal(t, "player.left", env.Event)
	require.JSONEq(t, `{"id":"p2"}`, string(env.Data))

	env, err = DecodeEnvelope([]byte(`{"eventId":"e-1","eventType":"player.left","payload":{"id":"p3"}}`))
	require.NoError(t, err)
	require.Equal(t, "e-1", env.ID)
	require.Equal(t, "player.left", env.Event)
	require.JSONEq(t, `{"id":"p3"}`, string(env.Data))

	_, err = DecodeEnvelope([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, err = DecodeEnvelope(nil)
	require.Error(t, err)
}
