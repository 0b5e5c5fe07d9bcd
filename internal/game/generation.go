package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	generationSuffix = "Create a beautiful collaborative artwork that combines all these elements."

	// PlaceholderImage is a 1x1 PNG substituted when generation fails in
	// degraded mode.
	PlaceholderImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
)

func PlaceholderCandidates(n int) []string {
	if n <= 0 {
		n = 1
	}
	images := make([]string, n)
	for i := range images {
		images[i] = PlaceholderImage
	}
	return images
}

// GenerationPrompt joins every contributor's prompt, in turn order, into
// the text sent to the image generator.
func GenerationPrompt(turns []*DrawingTurn) string {
	combined := combinePrompts(turns, ". ")
	if combined == "" {
		combined = defaultCombinedPrompt
	}
	return combined + ". " + generationSuffix
}

// RequestGeneration runs the generation job at most once per cycle. A
// concurrent caller gets ErrGenerationInProgress and should poll
// FetchGenerationResult instead. produced is true only when this call ran
// the job or moved the session into voting; repeat calls get the stored
// result with produced false.
func (c *Coordinator) RequestGeneration(ctx context.Context, sessionID string) (result *GenerationResult, produced bool, err error) {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	switch session.Phase {
	case PhaseGenerating, PhaseVoting, PhaseComplete:
		existing, err := c.store.GenerationResult(ctx, sessionID)
		if err == nil {
			if session.Phase != PhaseGenerating {
				return existing, false, nil
			}
			opened, err := c.openVoting(ctx, sessionID)
			if err != nil {
				return nil, false, err
			}
			return existing, opened, nil
		}
		if !errors.Is(err, ErrNoResult) {
			return nil, false, err
		}
	}
	if session.Phase != PhaseGenerating {
		return nil, false, ErrWrongPhase
	}

	token, err := c.store.AcquireLease(ctx, sessionID, c.opts.LeaseTTL)
	if err != nil {
		if errors.Is(err, ErrGenerationInProgress) {
			c.logger.Debug().Str("session_id", sessionID).Msg("generation lease held")
		}
		return nil, false, err
	}
	defer func() {
		if err := c.store.ReleaseLease(context.WithoutCancel(ctx), sessionID, token); err != nil {
			c.logger.Error().Err(err).Str("session_id", sessionID).Msg("release generation lease failed")
		}
	}()

	// Another holder may have finished between the first read and the lease.
	session, err = c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if session.Phase != PhaseGenerating {
		if existing, err := c.store.GenerationResult(ctx, sessionID); err == nil {
			return existing, false, nil
		}
		return nil, false, ErrWrongPhase
	}

	turns := make([]*DrawingTurn, 0, len(session.TurnOrder))
	for _, address := range session.TurnOrder {
		turn, err := c.store.Turn(ctx, sessionID, address)
		if errors.Is(err, ErrParticipantNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		turns = append(turns, turn)
	}
	prompt := GenerationPrompt(turns)
	c.logger.Info().
		Str("session_id", sessionID).
		Int("contributors", len(turns)).
		Msg("generation started")

	images, genErr := c.generate(ctx, GenerationRequest{
		SessionID:      sessionID,
		Prompt:         prompt,
		ReferenceImage: session.CombinedImage,
		Candidates:     c.opts.Candidates,
	})
	degraded := false
	if genErr != nil {
		if !c.opts.Fallback {
			c.logger.Error().Err(genErr).Str("session_id", sessionID).Msg("generation failed")
			if _, rbErr := c.RollbackGeneration(ctx, sessionID); rbErr != nil {
				return nil, false, errors.Join(fmt.Errorf("%w: %v", ErrGenerationFailed, genErr), rbErr)
			}
			return nil, false, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
		}
		c.logger.Warn().Err(genErr).Str("session_id", sessionID).Msg("generation failed, using placeholders")
		images = PlaceholderCandidates(c.opts.Candidates)
		degraded = true
	}

	result = &GenerationResult{
		Images:         images,
		CombinedPrompt: session.CombinedPrompt,
		GeneratedAt:    c.now(),
		Degraded:       degraded,
	}
	if err := c.store.SaveGenerationResult(ctx, sessionID, result, c.opts.ResultTTL); err != nil {
		return nil, false, err
	}
	if _, err := c.openVoting(ctx, sessionID); err != nil {
		return nil, false, err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Int("candidates", len(images)).
		Bool("degraded", degraded).
		Msg("generation complete")
	return result, true, nil
}

func (c *Coordinator) generate(ctx context.Context, req GenerationRequest) ([]string, error) {
	if c.generator == nil {
		return nil, errors.New("no image generator configured")
	}
	genCtx, cancel := context.WithTimeout(ctx, c.opts.GenerationTimeout)
	defer cancel()
	images, err := c.generator.Generate(genCtx, req)
	if err != nil {
		return nil, err
	}
	usable := make([]string, 0, len(images))
	for _, image := range images {
		if strings.TrimSpace(image) != "" {
			usable = append(usable, image)
		}
	}
	if len(usable) == 0 {
		return nil, errors.New("generator returned no images")
	}
	return usable, nil
}

// openVoting is a no-op once the session has left generating. It reports
// whether this call made the transition.
func (c *Coordinator) openVoting(ctx context.Context, sessionID string) (bool, error) {
	opened := false
	err := c.store.Update(ctx, sessionID, func(tx Tx) error {
		opened = false
		session, err := tx.Session()
		if err != nil {
			return err
		}
		if session.Phase != PhaseGenerating {
			return nil
		}
		now := c.now()
		session.Phase = PhaseVoting
		session.Generating = false
		session.VotingStartedAt = &now
		session.UpdatedAt = now
		if err := tx.PutVotes(VoteTally{}); err != nil {
			return err
		}
		if err := tx.PutSession(session); err != nil {
			return err
		}
		opened = true
		return nil
	})
	return opened && err == nil, err
}

func (c *Coordinator) FetchGenerationResult(ctx context.Context, sessionID string) (*GenerationResult, error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.store.GenerationResult(ctx, sessionID)
}
