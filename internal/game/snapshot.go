package game

import (
	"context"
	"errors"
)

// TurnStatus is a DrawingTurn without its canvas payload.
type TurnStatus struct {
	Address     string `json:"address"`
	TurnIndex   int    `json:"turn_index"`
	HasDrawn    bool   `json:"has_drawn"`
	HasPrompted bool   `json:"has_prompted"`
	HasLocked   bool   `json:"has_locked"`
}

// Snapshot is everything a polling client needs to render one frame.
type Snapshot struct {
	Session       *Session          `json:"session"`
	CurrentArtist string            `json:"current_artist,omitempty"`
	Turns         []TurnStatus      `json:"turns,omitempty"`
	Generation    *GenerationResult `json:"generation,omitempty"`
	Votes         VoteTally         `json:"votes,omitempty"`
	Final         *FinalSelection   `json:"final,omitempty"`
}

// Snapshot reads the session and its satellite records. The reads span
// several keys and are not atomic with each other; TurnSequence and
// Version on the session are the ordering authority.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Session:       session,
		CurrentArtist: session.CurrentArtist(),
	}
	for _, address := range session.TurnOrder {
		turn, err := c.store.Turn(ctx, sessionID, address)
		if errors.Is(err, ErrParticipantNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.Turns = append(snap.Turns, TurnStatus{
			Address:     turn.Address,
			TurnIndex:   turn.TurnIndex,
			HasDrawn:    turn.HasDrawn,
			HasPrompted: turn.HasPrompted,
			HasLocked:   turn.HasLocked,
		})
	}
	if session.Phase == PhaseVoting || session.Phase == PhaseComplete || session.Phase == PhaseGenerating {
		result, err := c.store.GenerationResult(ctx, sessionID)
		switch {
		case err == nil:
			snap.Generation = result
		case !errors.Is(err, ErrNoResult):
			return nil, err
		}
	}
	if session.Phase == PhaseVoting || session.Phase == PhaseComplete {
		if snap.Votes, err = c.store.Votes(ctx, sessionID); err != nil {
			return nil, err
		}
		if snap.Final, err = c.store.Final(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
