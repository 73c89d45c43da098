package stopify_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateRoomRequest struct {
	PlayerName string `json:"playerName"`
}

type CreateRoomResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type JoinRoomRequest struct {
	PlayerName string `json:"playerName"`
	Code       string `json:"code"`
}

type JoinRoomResponse struct {
	PlayerID string `json:"playerId"`
}

type RoomResponse struct {
	Code    string   `json:"code"`
	Players []Player `json:"players"`
}

type LeaveRoomRequest struct {
	PlayerID string `json:"playerId"`
}

type SubmitAnswersRequest struct {
	Code     string            `json:"code"`
	Letter   string            `json:"letter"`
	PlayerID string            `json:"playerId"`
	Answers  map[string]string `json:"answers"`
}

func (c *StopifyClient) CreateRoom(ctx context.Context, playerName string) (CreateRoomResponse, error) {
	body, err := c.PostJSON(ctx, RoomEndpoint, CreateRoomRequest{PlayerName: playerName})
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.Code == "" || response.PlayerID == "" {
		return CreateRoomResponse{}, fmt.Errorf("create room response missing code or playerId: %s", string(body))
	}

	return response, nil
}

func (c *StopifyClient) JoinRoom(ctx context.Context, playerName, code string) (JoinRoomResponse, error) {
	endpoint := fmt.Sprintf(RoomJoinEndpoint, url.PathEscape(code))
	body, err := c.PostJSON(ctx, endpoint, JoinRoomRequest{PlayerName: playerName, Code: code})
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room %s: %w", code, err)
	}

	var response JoinRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.PlayerID == "" {
		return JoinRoomResponse{}, fmt.Errorf("join room response missing playerId: %s", string(body))
	}

	return response, nil
}

// GetRoom fetches the current roster of a room
func (c *StopifyClient) GetRoom(ctx context.Context, code string) (RoomResponse, error) {
	endpoint := fmt.Sprintf(RoomDetailEndpoint, url.PathEscape(code))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return RoomResponse{}, fmt.Errorf("failed to get room %s: %w", code, err)
	}

	var response RoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return RoomResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return response, nil
}

func (c *StopifyClient) LeaveRoom(ctx context.Context, code, playerID string) error {
	endpoint := fmt.Sprintf(RoomLeaveEndpoint, url.PathEscape(code))
	if _, err := c.PostJSON(ctx, endpoint, LeaveRoomRequest{PlayerID: playerID}); err != nil {
		return fmt.Errorf("failed to leave room %s: %w", code, err)
	}
	return nil
}

func (c *StopifyClient) StartGame(ctx context.Context, code string) error {
	endpoint := fmt.Sprintf(RoomStartEndpoint, url.PathEscape(code))
	if _, err := c.PostJSON(ctx, endpoint, nil); err != nil {
		return fmt.Errorf("failed to start game in room %s: %w", code, err)
	}
	return nil
}

// SubmitAnswers sends one player's answers for a round
func (c *StopifyClient) SubmitAnswers(ctx context.Context, code, letter, playerID string, answers map[string]string) error {
	request := SubmitAnswersRequest{
		Code:     code,
		Letter:   letter,
		PlayerID: playerID,
		Answers:  answers,
	}
	if _, err := c.PostJSON(ctx, SubmitAnswersEndpoint, request); err != nil {
		return fmt.Errorf("failed to submit answers: %w", err)
	}
	return nil
}
