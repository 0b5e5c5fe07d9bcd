package game

import (
	"context"

	"artfusion/internal/logging"
)

// SubmitVote records one vote per turn-order participant. The vote that
// completes the tally also completes the session.
func (c *Coordinator) SubmitVote(ctx context.Context, sessionID, address string, candidate int) (VoteResult, error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return VoteResult{}, err
	}
	generated, err := c.store.GenerationResult(ctx, sessionID)
	if err != nil {
		return VoteResult{}, err
	}
	var result VoteResult
	err = c.store.Update(ctx, sessionID, func(tx Tx) error {
		result = VoteResult{}
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if session.Phase != PhaseVoting {
			return ErrWrongPhase
		}
		if !session.InTurnOrder(address) {
			return ErrParticipantNotFound
		}
		if candidate < 0 || candidate >= len(generated.Images) {
			return ErrInvalidCandidate
		}
		votes, err := tx.Votes()
		if err != nil {
			return err
		}
		if _, voted := votes[address]; voted {
			return ErrAlreadyVoted
		}
		votes[address] = candidate
		if err := tx.PutVotes(votes); err != nil {
			return err
		}
		result.Votes = votes
		if !allVoted(session, votes) {
			return nil
		}
		final, err := c.finalize(tx, session, votes, generated)
		if err != nil {
			return err
		}
		result.Complete = true
		result.Final = final
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Str("address", logging.ShortAddress(address)).
		Int("candidate", candidate).
		Int("votes", len(result.Votes)).
		Msg("vote recorded")
	if result.Final != nil {
		c.logger.Info().
			Str("session_id", sessionID).
			Int("winner", result.Final.Winner).
			Msg("voting complete")
	}
	return result, nil
}

// CloseVoting completes the session with whatever votes have arrived.
func (c *Coordinator) CloseVoting(ctx context.Context, sessionID string) (*FinalSelection, error) {
	generated, err := c.store.GenerationResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var final *FinalSelection
	err = c.store.Update(ctx, sessionID, func(tx Tx) error {
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if session.Phase != PhaseVoting {
			return ErrWrongPhase
		}
		votes, err := tx.Votes()
		if err != nil {
			return err
		}
		final, err = c.finalize(tx, session, votes, generated)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Int("winner", final.Winner).
		Int("votes", len(final.Votes)).
		Msg("voting closed")
	return final, nil
}

func (c *Coordinator) finalize(tx Tx, session *Session, votes VoteTally, generated *GenerationResult) (*FinalSelection, error) {
	counts, winner := TallyVotes(votes, len(generated.Images))
	final := &FinalSelection{
		Winner:         winner,
		Image:          generated.Images[winner],
		CombinedPrompt: generated.CombinedPrompt,
		Votes:          votes,
		Counts:         counts,
		CompletedAt:    c.now(),
	}
	if err := tx.PutFinal(final); err != nil {
		return nil, err
	}
	session.Phase = PhaseComplete
	session.UpdatedAt = final.CompletedAt
	if err := tx.PutSession(session); err != nil {
		return nil, err
	}
	return final, nil
}

// TallyVotes counts votes per candidate. Ties go to the lowest index.
func TallyVotes(votes VoteTally, candidates int) ([]int, int) {
	counts := make([]int, candidates)
	for _, candidate := range votes {
		if candidate >= 0 && candidate < candidates {
			counts[candidate]++
		}
	}
	winner := 0
	for i, count := range counts {
		if count > counts[winner] {
			winner = i
		}
	}
	return counts, winner
}

func allVoted(session *Session, votes VoteTally) bool {
	for _, address := range session.TurnOrder {
		if _, ok := votes[address]; !ok {
			return false
		}
	}
	return len(session.TurnOrder) > 0
}

func (c *Coordinator) Votes(ctx context.Context, sessionID string) (VoteTally, error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.store.Votes(ctx, sessionID)
}

func (c *Coordinator) FinalSelection(ctx context.Context, sessionID string) (*FinalSelection, error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.store.Final(ctx, sessionID)
}
