package game

import (
	"context"
	"errors"
	"strings"
)

const defaultArtworkTitle = "Collaborative Artwork"

// EqualStakes splits 100 percent across the turn order. The remainder is
// handed out one point at a time from the front.
func EqualStakes(turnOrder []string) []Stake {
	if len(turnOrder) == 0 {
		return nil
	}
	n := len(turnOrder)
	base, remainder := 100/n, 100%n
	stakes := make([]Stake, n)
	for i, address := range turnOrder {
		percent := base
		if i < remainder {
			percent++
		}
		stakes[i] = Stake{Address: address, Percent: percent}
	}
	return stakes
}

// Mint hands the winning image to the Minter with equal contributor
// stakes.
func (c *Coordinator) Mint(ctx context.Context, sessionID, title string) (string, error) {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Phase != PhaseComplete {
		return "", ErrWrongPhase
	}
	final, err := c.store.Final(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if final == nil {
		return "", ErrNoResult
	}
	if c.minter == nil {
		return "", errors.New("no minter configured")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultArtworkTitle
	}
	contributions := make([]DrawingTurn, 0, len(session.TurnOrder))
	for _, address := range session.TurnOrder {
		turn, err := c.store.Turn(ctx, sessionID, address)
		if errors.Is(err, ErrParticipantNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		contributions = append(contributions, *turn)
	}
	assetID, err := c.minter.Mint(ctx, MintRequest{
		SessionID:      sessionID,
		Title:          title,
		Image:          final.Image,
		CombinedPrompt: final.CombinedPrompt,
		Stakes:         EqualStakes(session.TurnOrder),
		Contributions:  contributions,
		Votes:          final.Votes,
	})
	if err != nil {
		return "", err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Str("asset_id", assetID).
		Int("collaborators", len(session.TurnOrder)).
		Msg("artwork minted")
	return assetID, nil
}
