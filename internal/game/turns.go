package game

import (
	"context"
	"errors"
	"strings"

	"artfusion/internal/logging"
)

const (
	promptSeparator       = " + "
	defaultCombinedPrompt = "collaborative artwork"
)

// StartSession fixes the turn order. Only the host may start, and only
// from the lobby.
func (c *Coordinator) StartSession(ctx context.Context, sessionID, caller string) (*Session, error) {
	return c.initializeTurnOrder(ctx, sessionID, caller, c.opts.RandomStartTurn)
}

// InitializeTurnOrder starts the session without a host check, with the
// first artist at index 0.
func (c *Coordinator) InitializeTurnOrder(ctx context.Context, sessionID string) (*Session, error) {
	return c.initializeTurnOrder(ctx, sessionID, "", false)
}

func (c *Coordinator) initializeTurnOrder(ctx context.Context, sessionID, caller string, randomStart bool) (*Session, error) {
	var started *Session
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if session.Phase != PhaseLobby {
			return ErrWrongPhase
		}
		if caller != "" && session.HostAddress != caller {
			return ErrNotHost
		}
		if len(session.Participants) < 2 {
			return ErrInsufficientParticipants
		}
		order := make([]string, len(session.Participants))
		for i, participant := range session.Participants {
			order[i] = participant.Address
		}
		c.shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		start := 0
		if randomStart {
			start = c.intn(len(order))
		}
		for i, address := range order {
			if err := tx.PutTurn(&DrawingTurn{
				SessionID: sessionID,
				Address:   address,
				TurnIndex: i,
			}); err != nil {
				return err
			}
		}
		session.TurnOrder = order
		session.CurrentTurnIndex = start
		session.Phase = PhaseDrawing
		session.UpdatedAt = c.now()
		if err := tx.PutSession(session); err != nil {
			return err
		}
		started = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Strs("turn_order", started.TurnOrder).
		Str("artist", logging.ShortAddress(started.CurrentArtist())).
		Msg("session started")
	return started, nil
}

// LockTurn finalizes the caller's turn and either hands the turn to the
// next unlocked artist or moves the session to generating.
func (c *Coordinator) LockTurn(ctx context.Context, sessionID, address string) (LockResult, error) {
	var result LockResult
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if !session.HasParticipant(address) {
			return ErrParticipantNotFound
		}
		if session.CurrentArtist() != address {
			return ErrNotYourTurn
		}
		turn, err := tx.Turn(address)
		if err != nil {
			return err
		}
		if !turn.HasDrawn || strings.TrimSpace(turn.Prompt) == "" {
			return ErrRequirementsNotMet
		}
		turn.HasLocked = true
		if err := tx.PutTurn(turn); err != nil {
			return err
		}

		turns := make([]*DrawingTurn, len(session.TurnOrder))
		for i, entry := range session.TurnOrder {
			if entry == address {
				turns[i] = turn
				continue
			}
			other, err := tx.Turn(entry)
			if errors.Is(err, ErrParticipantNotFound) {
				// A missing record counts as an unlocked turn.
				turns[i] = &DrawingTurn{SessionID: sessionID, Address: entry, TurnIndex: i}
				continue
			}
			if err != nil {
				return err
			}
			turns[i] = other
		}

		session.TurnSequence++
		session.UpdatedAt = c.now()
		next := nextUnlocked(turns, session.CurrentTurnIndex)
		if next < 0 {
			session.Phase = PhaseGenerating
			session.Generating = true
			session.CombinedPrompt = combinePrompts(turns, promptSeparator)
			if session.CombinedPrompt == "" {
				session.CombinedPrompt = defaultCombinedPrompt
			}
			session.CombinedImage = turn.DrawingData
		} else {
			session.CurrentTurnIndex = next
		}
		if err := tx.PutSession(session); err != nil {
			return err
		}
		result = LockResult{
			Phase:            session.Phase,
			TurnSequence:     session.TurnSequence,
			CurrentTurnIndex: session.CurrentTurnIndex,
		}
		if session.Phase == PhaseGenerating {
			result.CombinedPrompt = session.CombinedPrompt
			result.CombinedImage = session.CombinedImage
		} else {
			result.NextArtist = session.CurrentArtist()
		}
		return nil
	})
	if err != nil {
		return LockResult{}, err
	}
	event := c.logger.Info().
		Str("session_id", sessionID).
		Str("address", logging.ShortAddress(address)).
		Int("turn_sequence", result.TurnSequence).
		Str("phase", string(result.Phase))
	if result.NextArtist != "" {
		event = event.Str("next_artist", logging.ShortAddress(result.NextArtist))
	}
	event.Msg("turn locked")
	return result, nil
}

// nextUnlocked scans forward from current, wrapping, and returns -1 when
// every turn is locked.
func nextUnlocked(turns []*DrawingTurn, current int) int {
	n := len(turns)
	for step := 1; step <= n; step++ {
		i := (current + step) % n
		if !turns[i].HasLocked {
			return i
		}
	}
	return -1
}

func combinePrompts(turns []*DrawingTurn, separator string) string {
	prompts := make([]string, 0, len(turns))
	for _, turn := range turns {
		if prompt := strings.TrimSpace(turn.Prompt); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, separator)
}

// UpdateDrawingTurn merges the caller's own canvas and prompt progress.
func (c *Coordinator) UpdateDrawingTurn(ctx context.Context, sessionID, address string, update TurnUpdate) (*DrawingTurn, error) {
	var updated *DrawingTurn
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if !session.HasParticipant(address) {
			return ErrParticipantNotFound
		}
		if session.Phase != PhaseDrawing {
			return ErrWrongPhase
		}
		turn, err := tx.Turn(address)
		if err != nil {
			return err
		}
		if turn.HasLocked {
			return ErrTurnLocked
		}
		if update.HasDrawn != nil {
			turn.HasDrawn = *update.HasDrawn
		}
		if update.Prompt != nil {
			turn.Prompt = *update.Prompt
		}
		if update.DrawingData != nil {
			turn.DrawingData = *update.DrawingData
		}
		turn.HasPrompted = strings.TrimSpace(turn.Prompt) != ""
		if err := tx.PutTurn(turn); err != nil {
			return err
		}
		updated = turn
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("session_id", sessionID).
		Str("address", logging.ShortAddress(address)).
		Bool("has_drawn", updated.HasDrawn).
		Bool("has_prompted", updated.HasPrompted).
		Msg("drawing turn updated")
	return updated, nil
}

// RollbackGeneration returns a generating session to drawing and unlocks
// the final artist so their next lock re-enters generating.
func (c *Coordinator) RollbackGeneration(ctx context.Context, sessionID string) (*Session, error) {
	var rolled *Session
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if session.Phase != PhaseGenerating {
			return ErrWrongPhase
		}
		artist := session.TurnOrder[session.CurrentTurnIndex]
		turn, err := tx.Turn(artist)
		if err != nil {
			return err
		}
		turn.HasLocked = false
		if err := tx.PutTurn(turn); err != nil {
			return err
		}
		session.Phase = PhaseDrawing
		session.Generating = false
		session.CombinedPrompt = ""
		session.CombinedImage = ""
		session.UpdatedAt = c.now()
		if err := tx.PutSession(session); err != nil {
			return err
		}
		rolled = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Warn().
		Str("session_id", sessionID).
		Str("artist", logging.ShortAddress(rolled.CurrentArtist())).
		Msg("generation rolled back")
	return rolled, nil
}
