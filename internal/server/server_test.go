package server

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"artfusion/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	body := expectStatus(t, doRequest(t, ts, http.MethodGet, "/health", nil), http.StatusOK)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateSessionStartsEmptyLobby(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := createSession(t, ts)
	state := fetchState(t, ts, sessionID)
	session := state["session"].(map[string]any)
	assert.Equal(t, "lobby", session["phase"])
	assert.Empty(t, session["participants"])
}

func TestFullSessionFlow(t *testing.T) {
	gen := &stubGenerator{images: []string{"https://img/a.png", "https://img/b.png", "https://img/c.png"}}
	_, ts := newTestApp(t, newTestConfig(), gen)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")

	first := drawAndLock(t, ts, sessionID, "a red fox")
	second := drawAndLock(t, ts, sessionID, "under the moon")
	assert.NotEqual(t, first, second)

	state := fetchState(t, ts, sessionID)
	assert.Equal(t, "generating", state["session"].(map[string]any)["phase"])

	result := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/generate", nil), http.StatusOK)
	assert.Len(t, result["images"], 3)
	assert.Equal(t, 1, gen.calls)

	// A second request returns the stored result without regenerating.
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/generate", nil), http.StatusOK)
	assert.Equal(t, 1, gen.calls)

	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/votes", map[string]any{
		"address": "0xaaa", "candidate": 2,
	}), http.StatusOK)
	vote := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/votes", map[string]any{
		"address": "0xbbb", "candidate": 2,
	}), http.StatusOK)
	assert.Equal(t, true, vote["complete"])

	votes := expectStatus(t, doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/votes", nil), http.StatusOK)
	final := votes["final"].(map[string]any)
	assert.Equal(t, float64(2), final["winner"])
	assert.Equal(t, "https://img/c.png", final["image"])

	minted := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/mint", map[string]string{
		"title": "Fox at night",
	}), http.StatusOK)
	assert.NotEmpty(t, minted["asset_id"])
	stakes := minted["stakes"].([]any)
	require.Len(t, stakes, 2)
	assert.Equal(t, float64(50), stakes[0].(map[string]any)["percent"])

	again := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/mint", nil), http.StatusOK)
	assert.Equal(t, minted["asset_id"], again["asset_id"])
}

func TestErrorCodes(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	artist := currentArtist(t, ts, sessionID)
	other := "0xaaa"
	if artist == other {
		other = "0xbbb"
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, "session_not_found"},
		{"not your turn", http.MethodPost, "/api/sessions/" + sessionID + "/lock", map[string]string{"address": other}, http.StatusConflict, "not_your_turn"},
		{"requirements not met", http.MethodPost, "/api/sessions/" + sessionID + "/lock", map[string]string{"address": artist}, http.StatusUnprocessableEntity, "requirements_not_met"},
		{"unknown participant", http.MethodPost, "/api/sessions/" + sessionID + "/lock", map[string]string{"address": "0xccc"}, http.StatusNotFound, "participant_not_found"},
		{"join after start", http.MethodPost, "/api/sessions/" + sessionID + "/join", map[string]string{"address": "0xccc"}, http.StatusConflict, "session_started"},
		{"generate while drawing", http.MethodPost, "/api/sessions/" + sessionID + "/generate", nil, http.StatusConflict, "wrong_phase"},
		{"no result yet", http.MethodGet, "/api/sessions/" + sessionID + "/generation", nil, http.StatusNotFound, "no_result"},
		{"vote while drawing", http.MethodPost, "/api/sessions/" + sessionID + "/votes", map[string]any{"address": artist, "candidate": 0}, http.StatusNotFound, "no_result"},
		{"mint while drawing", http.MethodPost, "/api/sessions/" + sessionID + "/mint", nil, http.StatusConflict, "wrong_phase"},
		{"leave mid game", http.MethodPost, "/api/sessions/" + sessionID + "/leave", map[string]string{"address": artist}, http.StatusConflict, "wrong_phase"},
		{"bad address", http.MethodPost, "/api/sessions/" + sessionID + "/lock", map[string]string{"address": "not an address!"}, http.StatusBadRequest, "invalid_request"},
		{"missing address", http.MethodPost, "/api/sessions/" + sessionID + "/lock", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"events without db", http.MethodGet, "/api/sessions/" + sessionID + "/events", nil, http.StatusNotFound, "Not Found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := expectStatus(t, doRequest(t, ts, tc.method, tc.path, tc.body), tc.status)
			assert.Equal(t, tc.code, body["code"])
		})
	}
}

func TestStartRequiresHostAndTwoParticipants(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := createSession(t, ts)
	joinParticipant(t, ts, sessionID, "0xaaa")

	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/start", map[string]string{
		"address": "0xaaa",
	}), http.StatusUnprocessableEntity)
	assert.Equal(t, "insufficient_participants", body["code"])

	joinParticipant(t, ts, sessionID, "0xbbb")
	body = expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/start", map[string]string{
		"address": "0xbbb",
	}), http.StatusForbidden)
	assert.Equal(t, "not_host", body["code"])
}

func TestUpdateTurnValidation(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	path := "/api/sessions/" + sessionID + "/turns/0xaaa"

	body := expectStatus(t, doRequest(t, ts, http.MethodPost, path, map[string]any{
		"drawing_data": "not a data uri",
	}), http.StatusBadRequest)
	assert.Equal(t, "drawing must be an image data URI under 2MB", body["error"])

	turn := expectStatus(t, doRequest(t, ts, http.MethodPost, path, map[string]any{
		"prompt": "  a   quiet lake  ",
	}), http.StatusOK)
	assert.Equal(t, "a quiet lake", turn["prompt"])
	assert.Equal(t, true, turn["has_prompted"])

	read := expectStatus(t, doRequest(t, ts, http.MethodGet, path, nil), http.StatusOK)
	assert.Equal(t, "a quiet lake", read["prompt"])
}

func TestLeaveLastParticipantDeletesSession(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := createSession(t, ts)
	joinParticipant(t, ts, sessionID, "0xaaa")

	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/leave", map[string]string{
		"address": "0xaaa",
	}), http.StatusOK)
	assert.Equal(t, true, body["deleted"])
	expectStatus(t, doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID, nil), http.StatusNotFound)
}

func TestDeleteSession(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	expectStatus(t, doRequest(t, ts, http.MethodDelete, "/api/sessions/"+sessionID, nil), http.StatusNoContent)
	expectStatus(t, doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"/turns/0xaaa", nil), http.StatusNotFound)
}

func TestGenerationFailureRollsBack(t *testing.T) {
	cfg := newTestConfig()
	cfg.GenerationFallback = false
	gen := &stubGenerator{err: errors.New("upstream down")}
	_, ts := newTestApp(t, cfg, gen)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	drawAndLock(t, ts, sessionID, "one")
	last := drawAndLock(t, ts, sessionID, "two")

	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/generate", nil), http.StatusBadGateway)
	assert.Equal(t, "generation_failed", body["code"])
	assert.Equal(t, true, body["retryable"])

	state := fetchState(t, ts, sessionID)
	assert.Equal(t, "drawing", state["session"].(map[string]any)["phase"])
	assert.Equal(t, last, state["current_artist"])
}

func TestGenerationFallbackIsDegraded(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	_, ts := newTestApp(t, newTestConfig(), gen)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	drawAndLock(t, ts, sessionID, "one")
	drawAndLock(t, ts, sessionID, "two")

	result := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/generate", nil), http.StatusOK)
	assert.Equal(t, true, result["degraded"])
	images := result["images"].([]any)
	require.Len(t, images, 3)
	assert.Equal(t, game.PlaceholderImage, images[0])
}

func TestFetchStateHeartbeatAndSweep(t *testing.T) {
	srv, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := createSession(t, ts)
	joinParticipant(t, ts, sessionID, "0xaaa")
	joinParticipant(t, ts, sessionID, "0xbbb")

	later := time.Now().UTC().Add(time.Minute)
	srv.Coordinator().SetClock(func() time.Time { return later })

	state := expectStatus(t, doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID+"?address=0xaaa", nil), http.StatusOK)
	participants := state["session"].(map[string]any)["participants"].([]any)
	require.Len(t, participants, 2)
	active := map[string]bool{}
	for _, raw := range participants {
		p := raw.(map[string]any)
		active[p["address"].(string)] = p["active"].(bool)
	}
	assert.True(t, active["0xaaa"])
	assert.False(t, active["0xbbb"])
}

func TestRateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	_, ts := newTestApp(t, cfg, nil)

	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions", nil), http.StatusCreated)
	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions", nil), http.StatusTooManyRequests)
	assert.Equal(t, "rate_limited", body["code"])

	// Health is outside the limited group.
	expectStatus(t, doRequest(t, ts, http.MethodGet, "/health", nil), http.StatusOK)
}

func TestVoteDeadlineClosesVoting(t *testing.T) {
	srv, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	drawAndLock(t, ts, sessionID, "one")
	drawAndLock(t, ts, sessionID, "two")
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/generate", nil), http.StatusOK)
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/votes", map[string]any{
		"address": "0xaaa", "candidate": 1,
	}), http.StatusOK)

	srv.closeVoting(sessionID)

	state := fetchState(t, ts, sessionID)
	assert.Equal(t, "complete", state["session"].(map[string]any)["phase"])
	final := state["final"].(map[string]any)
	assert.Equal(t, float64(1), final["winner"])

	// Closing again is a quiet no-op.
	srv.closeVoting(sessionID)
}

func TestScheduleVoteDeadlineDisabledByDefault(t *testing.T) {
	srv, _ := newTestApp(t, newTestConfig(), nil)
	srv.scheduleVoteDeadline("s1")
	srv.timersMu.Lock()
	defer srv.timersMu.Unlock()
	assert.Empty(t, srv.timers)
}

func TestRepeatGenerateKeepsVoteDeadline(t *testing.T) {
	cfg := newTestConfig()
	cfg.VoteDurationSeconds = 60
	srv, ts := newTestApp(t, cfg, nil)
	sessionID := startedSession(t, ts, "0xaaa", "0xbbb")
	drawAndLock(t, ts, sessionID, "one")
	drawAndLock(t, ts, sessionID, "two")
	generatePath := "/api/sessions/" + sessionID + "/generate"

	expectStatus(t, doRequest(t, ts, http.MethodPost, generatePath, nil), http.StatusOK)
	srv.timersMu.Lock()
	armed := srv.timers[sessionID]
	srv.timersMu.Unlock()
	require.NotNil(t, armed)

	// A late caller during voting must not push the deadline back.
	expectStatus(t, doRequest(t, ts, http.MethodPost, generatePath, nil), http.StatusOK)
	srv.timersMu.Lock()
	assert.Same(t, armed, srv.timers[sessionID])
	srv.timersMu.Unlock()

	for _, address := range []string{"0xaaa", "0xbbb"} {
		expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/votes", map[string]any{
			"address": address, "candidate": 0,
		}), http.StatusOK)
	}
	srv.timersMu.Lock()
	assert.Empty(t, srv.timers)
	srv.timersMu.Unlock()

	// Nor may it arm a timer on a finished session.
	body := expectStatus(t, doRequest(t, ts, http.MethodPost, generatePath, nil), http.StatusOK)
	assert.Len(t, body["images"], 3)
	srv.timersMu.Lock()
	defer srv.timersMu.Unlock()
	assert.Empty(t, srv.timers)
}

func TestJoinRejectsPaddedAddress(t *testing.T) {
	_, ts := newTestApp(t, newTestConfig(), nil)
	sessionID := createSession(t, ts)
	joinParticipant(t, ts, sessionID, "0xaaa")

	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/join", map[string]string{
		"address": " 0xaaa",
	}), http.StatusBadRequest)
	assert.Equal(t, "invalid_request", body["code"])

	participants := fetchState(t, ts, sessionID)["session"].(map[string]any)["participants"].([]any)
	assert.Len(t, participants, 1)
}
