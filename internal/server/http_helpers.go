package server

import (
	"context"
	"errors"
	"net/http"

	"artfusion/internal/game"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorTable = []errorMapping{
	{game.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{game.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
	{game.ErrNotYourTurn, http.StatusConflict, "not_your_turn"},
	{game.ErrRequirementsNotMet, http.StatusUnprocessableEntity, "requirements_not_met"},
	{game.ErrInsufficientParticipants, http.StatusUnprocessableEntity, "insufficient_participants"},
	{game.ErrGenerationInProgress, http.StatusConflict, "generation_in_progress"},
	{game.ErrGenerationFailed, http.StatusBadGateway, "generation_failed"},
	{game.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
	{game.ErrWrongPhase, http.StatusConflict, "wrong_phase"},
	{game.ErrNotHost, http.StatusForbidden, "not_host"},
	{game.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{game.ErrInvalidCandidate, http.StatusBadRequest, "invalid_candidate"},
	{game.ErrTurnLocked, http.StatusConflict, "turn_locked"},
	{game.ErrSessionStarted, http.StatusConflict, "session_started"},
	{game.ErrNoResult, http.StatusNotFound, "no_result"},
	{game.ErrEmptyParticipants, http.StatusConflict, "empty_participants"},
	{game.ErrStaleWrite, http.StatusConflict, "stale_write"},
	{game.ErrCorruptRecord, http.StatusInternalServerError, "corrupt_record"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, errorResponse{Error: message, Code: http.StatusText(status)})
}

// writeDomainError maps a coordinator error to its status and machine code.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	for _, mapping := range errorTable {
		if errors.Is(err, mapping.err) {
			if mapping.status >= http.StatusInternalServerError {
				s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
			}
			c.JSON(mapping.status, errorResponse{
				Error:     err.Error(),
				Code:      mapping.code,
				Retryable: game.Retryable(err),
			})
			return
		}
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected error")
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
}
