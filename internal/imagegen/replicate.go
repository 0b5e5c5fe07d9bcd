package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"artfusion/internal/config"
	"artfusion/internal/game"

	"github.com/rs/zerolog"
)

const (
	imageSize         = 1024
	inferenceSteps    = 50
	guidanceScale     = 7.5
	defaultScheduler  = "K_EULER"
	defaultPollEvery  = 5 * time.Second
	defaultMaxPolls   = 60
	statusSucceeded   = "succeeded"
	statusFailed      = "failed"
	statusCanceled    = "canceled"
	maxResponseLength = 1 << 20
	referenceStrength = 0.8
)

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt            string  `json:"prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumOutputs        int     `json:"num_outputs"`
	Scheduler         string  `json:"scheduler"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int     `json:"seed"`
	Image             string  `json:"image,omitempty"`
	PromptStrength    float64 `json:"prompt_strength,omitempty"`
}

type prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  any      `json:"error,omitempty"`
}

// Replicate submits a prediction and polls until it settles.
type Replicate struct {
	token     string
	version   string
	baseURL   string
	client    *http.Client
	pollEvery time.Duration
	maxPolls  int
	logger    zerolog.Logger
}

func NewReplicate(cfg config.Config, logger zerolog.Logger) *Replicate {
	return &Replicate{
		token:     strings.TrimSpace(cfg.ReplicateAPIToken),
		version:   cfg.ReplicateModelVersion,
		baseURL:   strings.TrimRight(cfg.ReplicateBaseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		pollEvery: defaultPollEvery,
		maxPolls:  defaultMaxPolls,
		logger:    logger,
	}
}

func (r *Replicate) Generate(ctx context.Context, req game.GenerationRequest) ([]string, error) {
	if r.token == "" {
		return nil, errors.New("replicate API token is not configured")
	}
	count := req.Candidates
	if count <= 0 {
		count = 1
	}
	input := predictionInput{
		Prompt:            req.Prompt,
		Width:             imageSize,
		Height:            imageSize,
		NumOutputs:        count,
		Scheduler:         defaultScheduler,
		NumInferenceSteps: inferenceSteps,
		GuidanceScale:     guidanceScale,
		Seed:              rand.IntN(1_000_000),
	}
	// The canvas steers img2img; the prompt keeps most of the weight.
	if strings.HasPrefix(req.ReferenceImage, "data:image/") {
		input.Image = req.ReferenceImage
		input.PromptStrength = referenceStrength
	}
	payload, err := json.Marshal(predictionRequest{Version: r.version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("build replicate request: %w", err)
	}

	var current prediction
	if err := r.do(ctx, http.MethodPost, r.baseURL+"/predictions", payload, &current); err != nil {
		return nil, err
	}
	r.logger.Info().Str("session_id", req.SessionID).Str("prediction_id", current.ID).Msg("replicate prediction submitted")

	for attempt := 0; ; attempt++ {
		switch current.Status {
		case statusSucceeded:
			if len(current.Output) == 0 {
				return nil, errors.New("replicate returned no images")
			}
			return current.Output, nil
		case statusFailed, statusCanceled:
			return nil, fmt.Errorf("replicate prediction %s: %v", current.Status, current.Error)
		}
		if attempt >= r.maxPolls {
			return nil, fmt.Errorf("replicate prediction %s timed out", current.ID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollEvery):
		}
		if err := r.do(ctx, http.MethodGet, r.baseURL+"/predictions/"+current.ID, nil, &current); err != nil {
			return nil, err
		}
	}
}

func (r *Replicate) do(ctx context.Context, method, url string, payload []byte, dest *prediction) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build replicate request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+r.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach replicate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return fmt.Errorf("read replicate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("replicate request failed (%d)", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("parse replicate response: %w", err)
	}
	if dest.ID == "" {
		return errors.New("replicate response missing prediction id")
	}
	return nil
}
