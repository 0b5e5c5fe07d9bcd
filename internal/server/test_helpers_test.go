package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"artfusion/internal/config"
	"artfusion/internal/game"

	"github.com/rs/zerolog"
)

const testDrawingData = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAwMBAp4pWZkAAAAASUVORK5CYII="

type stubGenerator struct {
	images []string
	err    error
	calls  int
}

func (g *stubGenerator) Generate(_ context.Context, _ game.GenerationRequest) ([]string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.images, nil
}

func newTestConfig() config.Config {
	cfg := config.Default()
	cfg.RateLimitPerSecond = 1000
	cfg.RateLimitBurst = 1000
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, gen game.ImageGenerator) (*Server, *httptest.Server) {
	t.Helper()
	if gen == nil {
		gen = &stubGenerator{images: []string{"https://img/a.png", "https://img/b.png", "https://img/c.png"}}
	}
	srv := New(nil, cfg, WithGenerator(gen), WithLogger(zerolog.Nop()))
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func expectStatus(t *testing.T, resp *http.Response, status int) map[string]any {
	t.Helper()
	if resp.StatusCode != status {
		body := decodeBody(t, resp)
		t.Fatalf("expected status %d, got %d: %v", status, resp.StatusCode, body)
	}
	if status == http.StatusNoContent {
		resp.Body.Close()
		return nil
	}
	return decodeBody(t, resp)
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body := expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions", nil), http.StatusCreated)
	return body["session_id"].(string)
}

func joinParticipant(t *testing.T, ts *httptest.Server, sessionID, address string) {
	t.Helper()
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/join", map[string]string{
		"address": address,
	}), http.StatusOK)
}

func fetchState(t *testing.T, ts *httptest.Server, sessionID string) map[string]any {
	t.Helper()
	return expectStatus(t, doRequest(t, ts, http.MethodGet, "/api/sessions/"+sessionID, nil), http.StatusOK)
}

func currentArtist(t *testing.T, ts *httptest.Server, sessionID string) string {
	t.Helper()
	state := fetchState(t, ts, sessionID)
	artist, _ := state["current_artist"].(string)
	if artist == "" {
		t.Fatalf("expected a current artist, got %v", state)
	}
	return artist
}

// drawAndLock completes the current artist's turn and returns their address.
func drawAndLock(t *testing.T, ts *httptest.Server, sessionID, prompt string) string {
	t.Helper()
	artist := currentArtist(t, ts, sessionID)
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/turns/"+artist, map[string]any{
		"has_drawn":    true,
		"prompt":       prompt,
		"drawing_data": testDrawingData,
	}), http.StatusOK)
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/lock", map[string]string{
		"address": artist,
	}), http.StatusOK)
	return artist
}

func startedSession(t *testing.T, ts *httptest.Server, addresses ...string) string {
	t.Helper()
	sessionID := createSession(t, ts)
	for _, address := range addresses {
		joinParticipant(t, ts, sessionID, address)
	}
	expectStatus(t, doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/start", map[string]string{
		"address": addresses[0],
	}), http.StatusOK)
	return sessionID
}
