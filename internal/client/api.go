package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"artfusion/internal/game"
)

// APIError is a non-2xx response from the server. It unwraps to the game
// sentinel named by its code, so errors.Is works across the wire.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

var codeErrors = map[string]error{
	"session_not_found":         game.ErrSessionNotFound,
	"participant_not_found":     game.ErrParticipantNotFound,
	"not_your_turn":             game.ErrNotYourTurn,
	"requirements_not_met":      game.ErrRequirementsNotMet,
	"insufficient_participants": game.ErrInsufficientParticipants,
	"generation_in_progress":    game.ErrGenerationInProgress,
	"generation_failed":         game.ErrGenerationFailed,
	"store_unavailable":         game.ErrStoreUnavailable,
	"wrong_phase":               game.ErrWrongPhase,
	"not_host":                  game.ErrNotHost,
	"already_voted":             game.ErrAlreadyVoted,
	"invalid_candidate":         game.ErrInvalidCandidate,
	"turn_locked":               game.ErrTurnLocked,
	"session_started":           game.ErrSessionStarted,
	"no_result":                 game.ErrNoResult,
	"empty_participants":        game.ErrEmptyParticipants,
	"stale_write":               game.ErrStaleWrite,
	"corrupt_record":            game.ErrCorruptRecord,
}

// Client talks to the session HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) sessionPath(sessionID string, parts ...string) string {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	for _, part := range parts {
		path += "/" + url.PathEscape(part)
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var errBody struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errBody.Code,
			Message:   errBody.Error,
			Retryable: errBody.Retryable,
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// State fetches a snapshot. A non-empty address also refreshes liveness.
func (c *Client) State(ctx context.Context, sessionID, address string) (*game.Snapshot, error) {
	path := c.sessionPath(sessionID)
	if address != "" {
		path += "?address=" + url.QueryEscape(address)
	}
	var snap game.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Join(ctx context.Context, sessionID, address string) (*game.Session, error) {
	var session game.Session
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "join"), addressBody{address}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Leave(ctx context.Context, sessionID, address string) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "leave"), addressBody{address}, nil)
}

func (c *Client) Start(ctx context.Context, sessionID, address string) (*game.Session, error) {
	var session game.Session
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "start"), addressBody{address}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) UpdateTurn(ctx context.Context, sessionID, address string, update game.TurnUpdate) (*game.DrawingTurn, error) {
	body := turnBody{
		HasDrawn:    update.HasDrawn,
		Prompt:      update.Prompt,
		DrawingData: update.DrawingData,
	}
	var turn game.DrawingTurn
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "turns", address), body, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (c *Client) Lock(ctx context.Context, sessionID, address string) (game.LockResult, error) {
	var result game.LockResult
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "lock"), addressBody{address}, &result)
	return result, err
}

func (c *Client) Generate(ctx context.Context, sessionID string) (*game.GenerationResult, error) {
	var result game.GenerationResult
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "generate"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Vote(ctx context.Context, sessionID, address string, candidate int) (game.VoteResult, error) {
	var result game.VoteResult
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "votes"), voteBody{Address: address, Candidate: candidate}, &result)
	return result, err
}

func (c *Client) Mint(ctx context.Context, sessionID, title string) (string, error) {
	var out struct {
		AssetID string `json:"asset_id"`
	}
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "mint"), mintBody{Title: title}, &out); err != nil {
		return "", err
	}
	return out.AssetID, nil
}

type addressBody struct {
	Address string `json:"address"`
}

type turnBody struct {
	HasDrawn    *bool   `json:"has_drawn,omitempty"`
	Prompt      *string `json:"prompt,omitempty"`
	DrawingData *string `json:"drawing_data,omitempty"`
}

type voteBody struct {
	Address   string `json:"address"`
	Candidate int    `json:"candidate"`
}

type mintBody struct {
	Title string `json:"title,omitempty"`
}
