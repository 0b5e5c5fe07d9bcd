package server

import (
	"context"
	"errors"
	"time"

	"artfusion/internal/game"
)

// scheduleVoteDeadline closes voting after VOTE_SECONDS. Zero disables it.
func (s *Server) scheduleVoteDeadline(sessionID string) {
	duration := s.cfg.VoteDuration()
	if duration <= 0 {
		return
	}
	s.timersMu.Lock()
	if existing, ok := s.timers[sessionID]; ok {
		existing.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(duration, func() {
		s.closeVoting(sessionID)
	})
	s.timersMu.Unlock()
}

func (s *Server) cancelVoteDeadline(sessionID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

func (s *Server) closeVoting(sessionID string) {
	s.timersMu.Lock()
	delete(s.timers, sessionID)
	s.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	final, err := s.coord.CloseVoting(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, game.ErrWrongPhase) && !errors.Is(err, game.ErrSessionNotFound) {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("vote deadline close failed")
		}
		return
	}
	winner := final.Winner
	s.recordEvent(ctx, sessionID, "", eventVotingClosed, game.PhaseComplete, EventPayload{
		Reason: "timeout",
		Winner: &winner,
		Count:  len(final.Votes),
	})
	s.logger.Info().Str("session_id", sessionID).Msg("voting auto-closed")
	s.broadcastSession(ctx, sessionID)
}
