package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "debug", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger.Info().Str("session_id", "abc").Msg("session created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["session_id"])
	assert.Equal(t, "session created", entry["message"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupWriterUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "loud", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "abc", ShortAddress("abc"))
	assert.Equal(t, "0x1234...cdef", ShortAddress("0x1234567890abcdef"))
}
