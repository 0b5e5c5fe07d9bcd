package game

import (
	"context"
	"errors"
	"time"

	"artfusion/internal/logging"
)

// AddParticipant joins address to the session, creating the session on
// first join. Re-joining only refreshes liveness. New addresses are
// refused once the turn order is fixed.
func (c *Coordinator) AddParticipant(ctx context.Context, sessionID, address string) (*Session, error) {
	var joined *Session
	created := false
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		now := c.now()
		created = false
		session, err := tx.Session()
		if errors.Is(err, ErrSessionNotFound) {
			session = &Session{
				ID:        sessionID,
				Phase:     PhaseLobby,
				CreatedAt: now,
			}
			created = true
		} else if err != nil {
			return err
		}
		if existing, ok := session.Participant(address); ok {
			existing.Active = true
			existing.LastSeen = now
		} else {
			if session.Phase != PhaseLobby {
				return ErrSessionStarted
			}
			session.Participants = append(session.Participants, Participant{
				Address:  address,
				JoinedAt: now,
				Active:   true,
				LastSeen: now,
			})
		}
		if session.HostAddress == "" {
			session.HostAddress = session.Participants[0].Address
		}
		session.UpdatedAt = now
		if err := tx.PutSession(session); err != nil {
			return err
		}
		joined = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.logger.Info().Str("session_id", sessionID).Msg("session created")
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Str("address", logging.ShortAddress(address)).
		Int("participants", len(joined.Participants)).
		Msg("participant joined")
	return joined, nil
}

// RemoveParticipant handles a genuine departure. The last departure tears
// the session down, and the returned session is nil in that case.
func (c *Coordinator) RemoveParticipant(ctx context.Context, sessionID, address string) (*Session, error) {
	var remaining *Session
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		remaining = nil
		session, err := tx.Session()
		if err != nil {
			return err
		}
		index := -1
		for i := range session.Participants {
			if session.Participants[i].Address == address {
				index = i
				break
			}
		}
		if index < 0 {
			return ErrParticipantNotFound
		}
		if session.Phase != PhaseLobby && session.Phase != PhaseComplete {
			return ErrWrongPhase
		}
		session.Participants = append(session.Participants[:index], session.Participants[index+1:]...)
		if len(session.Participants) == 0 {
			tx.DeleteSession()
			return nil
		}
		if session.HostAddress == address {
			session.HostAddress = session.Participants[0].Address
		}
		session.UpdatedAt = c.now()
		if err := tx.PutSession(session); err != nil {
			return err
		}
		remaining = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	event := c.logger.Info().
		Str("session_id", sessionID).
		Str("address", logging.ShortAddress(address))
	if remaining == nil {
		event.Msg("last participant left, session torn down")
		return nil, nil
	}
	event.Str("host", logging.ShortAddress(remaining.HostAddress)).Msg("participant left")
	return remaining, nil
}

func (c *Coordinator) Heartbeat(ctx context.Context, sessionID, address string) (*Session, error) {
	var session *Session
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		current, err := tx.Session()
		if err != nil {
			return err
		}
		participant, ok := current.Participant(address)
		if !ok {
			return ErrParticipantNotFound
		}
		participant.Active = true
		participant.LastSeen = c.now()
		if err := tx.PutSession(current); err != nil {
			return err
		}
		session = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SweepInactive marks participants unseen for longer than threshold as
// inactive and returns their addresses. Nobody is removed.
func (c *Coordinator) SweepInactive(ctx context.Context, sessionID string, threshold time.Duration) ([]string, error) {
	var swept []string
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		swept = nil
		session, err := tx.Session()
		if err != nil {
			return err
		}
		cutoff := c.now().Add(-threshold)
		for i := range session.Participants {
			participant := &session.Participants[i]
			if participant.Active && participant.LastSeen.Before(cutoff) {
				participant.Active = false
				swept = append(swept, participant.Address)
			}
		}
		if len(swept) == 0 {
			return nil
		}
		return tx.PutSession(session)
	})
	if err != nil {
		return nil, err
	}
	if len(swept) > 0 {
		c.logger.Info().Str("session_id", sessionID).Strs("addresses", swept).Msg("participants marked inactive")
	}
	return swept, nil
}

func (c *Coordinator) IsHost(ctx context.Context, sessionID, address string) (bool, error) {
	host, err := c.HostAddress(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return host != "" && host == address, nil
}

func (c *Coordinator) HostAddress(ctx context.Context, sessionID string) (string, error) {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.HostAddress, nil
}
