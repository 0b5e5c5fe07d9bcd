package server

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0xAbC123", "0xAbC123", false},
		{"vitalik.eth", "vitalik.eth", false},
		{"  vitalik.eth ", "", true},
		{" 0xaaa", "", true},
		{"   ", "", true},
		{"solana:9xQe", "solana:9xQe", false},
		{"", "", true},
		{"has space", "", true},
		{"emoji😀", "", true},
		{strings.Repeat("a", maxAddressLength+1), "", true},
	}
	for _, tc := range tests {
		got, err := validateAddress(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestValidatePromptAndTitle(t *testing.T) {
	prompt, err := validatePrompt("  a  cat   on a hat ")
	assert.NoError(t, err)
	assert.Equal(t, "a cat on a hat", prompt)

	empty, err := validatePrompt("   ")
	assert.NoError(t, err)
	assert.Empty(t, empty)

	_, err = validatePrompt(strings.Repeat("x", maxPromptLength+1))
	assert.Error(t, err)
	_, err = validatePrompt("<script>")
	assert.Error(t, err)

	title, err := validateTitle(" Night  Fox ")
	assert.NoError(t, err)
	assert.Equal(t, "Night Fox", title)
	_, err = validateTitle(strings.Repeat("t", maxTitleLength+1))
	assert.Error(t, err)
}

func TestValidateDrawing(t *testing.T) {
	assert.NoError(t, validateDrawing(""))
	assert.NoError(t, validateDrawing(testDrawingData))
	assert.Error(t, validateDrawing("https://example.com/a.png"))
	assert.Error(t, validateDrawing("data:image/png;base64,"+strings.Repeat("A", maxDrawingBytes)))
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, limiter.allow("10.0.0.1"))

	now = now.Add(limiterIdleTTL + time.Second)
	limiter.allow("10.0.0.3")
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.clients, 1)
}
