package game

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ImageGenerator produces candidate images for a combined prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) ([]string, error)
}

// Minter records the winning artwork and returns an opaque asset id.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (string, error)
}

type Options struct {
	RandomStartTurn   bool
	LeaseTTL          time.Duration
	ResultTTL         time.Duration
	GenerationTimeout time.Duration
	Fallback          bool
	Candidates        int
}

func DefaultOptions() Options {
	return Options{
		LeaseTTL:          10 * time.Minute,
		ResultTTL:         time.Hour,
		GenerationTimeout: 5 * time.Minute,
		Fallback:          true,
		Candidates:        3,
	}
}

// Coordinator owns every session state transition. It keeps no session
// state of its own; the Store is authoritative.
type Coordinator struct {
	store     Store
	generator ImageGenerator
	minter    Minter
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
	shuffle   func(n int, swap func(i, j int))
	intn      func(n int) int
}

func NewCoordinator(store Store, generator ImageGenerator, minter Minter, opts Options, logger zerolog.Logger) *Coordinator {
	defaults := DefaultOptions()
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaults.LeaseTTL
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = defaults.ResultTTL
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaults.GenerationTimeout
	}
	if opts.Candidates <= 0 {
		opts.Candidates = defaults.Candidates
	}
	return &Coordinator{
		store:     store,
		generator: generator,
		minter:    minter,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		shuffle:   rand.Shuffle,
		intn:      rand.IntN,
	}
}

// SetClock replaces the time source used for liveness and timestamps.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Coordinator) Store() Store {
	return c.store
}

// CreateSession stores an empty lobby under a fresh id.
func (c *Coordinator) CreateSession(ctx context.Context) (*Session, error) {
	now := c.now()
	session := &Session{
		ID:        uuid.NewString(),
		Phase:     PhaseLobby,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Set(ctx, session); err != nil {
		return nil, err
	}
	c.logger.Info().Str("session_id", session.ID).Msg("session created")
	return session, nil
}

func (c *Coordinator) Session(ctx context.Context, sessionID string) (*Session, error) {
	return c.store.Get(ctx, sessionID)
}

func (c *Coordinator) Turn(ctx context.Context, sessionID, address string) (*DrawingTurn, error) {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.store.Turn(ctx, sessionID, address)
}

// TeardownSession removes the session and all of its records.
func (c *Coordinator) TeardownSession(ctx context.Context, sessionID string) error {
	if _, err := c.store.Get(ctx, sessionID); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	c.logger.Info().Str("session_id", sessionID).Msg("session torn down")
	return nil
}
