package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"artfusion/internal/config"
	"artfusion/internal/game"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplicate(t *testing.T, handler http.HandlerFunc) *Replicate {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cfg := config.Default()
	cfg.ReplicateAPIToken = "r8_test"
	cfg.ReplicateBaseURL = ts.URL + "/"
	r := NewReplicate(cfg, zerolog.Nop())
	r.pollEvery = time.Millisecond
	return r
}

func TestReplicateSubmitAndPoll(t *testing.T) {
	var polls atomic.Int32
	r := newTestReplicate(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Token r8_test", req.Header.Get("Authorization"))
		switch {
		case req.Method == http.MethodPost && req.URL.Path == "/predictions":
			var body predictionRequest
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, config.Default().ReplicateModelVersion, body.Version)
			assert.Equal(t, "a cat. Create art.", body.Input.Prompt)
			assert.Equal(t, 3, body.Input.NumOutputs)
			assert.Equal(t, 1024, body.Input.Width)
			assert.Equal(t, "K_EULER", body.Input.Scheduler)
			_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "starting"})
		case req.Method == http.MethodGet && req.URL.Path == "/predictions/p1":
			if polls.Add(1) < 3 {
				_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "succeeded", Output: []string{"a", "b", "c"}})
		default:
			http.NotFound(w, req)
		}
	})

	images, err := r.Generate(context.Background(), game.GenerationRequest{SessionID: "s1", Prompt: "a cat. Create art.", Candidates: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, images)
	assert.Equal(t, int32(3), polls.Load())
}

func TestReplicateFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "submit rejected",
			handler: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
			},
		},
		{
			name: "prediction failed",
			handler: func(w http.ResponseWriter, req *http.Request) {
				_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "failed", Error: "nsfw"})
			},
		},
		{
			name: "succeeded without output",
			handler: func(w http.ResponseWriter, req *http.Request) {
				_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "succeeded"})
			},
		},
		{
			name: "never settles",
			handler: func(w http.ResponseWriter, req *http.Request) {
				_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "processing"})
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestReplicate(t, tc.handler)
			r.maxPolls = 2
			_, err := r.Generate(context.Background(), game.GenerationRequest{Prompt: "x", Candidates: 3})
			assert.Error(t, err)
		})
	}
}

func TestReplicateRequiresToken(t *testing.T) {
	r := NewReplicate(config.Default(), zerolog.Nop())
	_, err := r.Generate(context.Background(), game.GenerationRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "token")
}

func TestReplicateHonorsContext(t *testing.T) {
	r := newTestReplicate(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "processing"})
	})
	r.pollEvery = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Generate(ctx, game.GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplicateSendsReferenceImage(t *testing.T) {
	const canvas = "data:image/png;base64,iVBORw0KGgo="
	seen := make(chan predictionInput, 2)
	r := newTestReplicate(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			var body predictionRequest
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			seen <- body.Input
		}
		_ = json.NewEncoder(w).Encode(prediction{ID: "p1", Status: "succeeded", Output: []string{"a"}})
	})

	_, err := r.Generate(context.Background(), game.GenerationRequest{Prompt: "p", ReferenceImage: canvas, Candidates: 1})
	require.NoError(t, err)
	input := <-seen
	assert.Equal(t, canvas, input.Image)
	assert.InDelta(t, 0.8, input.PromptStrength, 1e-9)

	_, err = r.Generate(context.Background(), game.GenerationRequest{Prompt: "p", ReferenceImage: "https://remote/x.png", Candidates: 1})
	require.NoError(t, err)
	input = <-seen
	assert.Empty(t, input.Image)
}
