package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"artfusion/internal/game"
	"artfusion/internal/logging"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval       = 2 * time.Second
	DefaultVoteTimeout    = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// API is the subset of Client the poller drives.
type API interface {
	State(ctx context.Context, sessionID, address string) (*game.Snapshot, error)
	Generate(ctx context.Context, sessionID string) (*game.GenerationResult, error)
	Vote(ctx context.Context, sessionID, address string, candidate int) (game.VoteResult, error)
	Leave(ctx context.Context, sessionID, address string) error
}

type Update struct {
	View         View
	Snapshot     *game.Snapshot
	PhaseChanged bool
	Err          error
}

type Handler func(Update)

type Config struct {
	SessionID      string
	Address        string
	Interval       time.Duration
	VoteTimeout    time.Duration
	RequestTimeout time.Duration
	// AutoGenerate asks the server to generate while the session sits in
	// the generating phase. The server lease makes repeated asks harmless.
	AutoGenerate bool
}

// Poller keeps one last-known-good snapshot and never lets an older one
// replace it.
type Poller struct {
	api     API
	cfg     Config
	handler Handler
	logger  zerolog.Logger

	mu           sync.Mutex
	last         *game.Snapshot
	stale        bool
	votingSeenAt time.Time
	voted        bool
	voteInFlight bool

	generating atomic.Bool
	wg         sync.WaitGroup

	now  func() time.Time
	intn func(int) int
}

func NewPoller(api API, cfg Config, handler Handler, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.VoteTimeout <= 0 {
		cfg.VoteTimeout = DefaultVoteTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if handler == nil {
		handler = func(Update) {}
	}
	return &Poller{
		api:     api,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("session_id", cfg.SessionID).Str("address", logging.ShortAddress(cfg.Address)).Logger(),
		now:     time.Now,
		intn:    rand.IntN,
	}
}

// Run polls until ctx is done. It does not leave the session; call Leave
// for that.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.wg.Wait()
	for {
		_, _ = p.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one fetch-derive-act cycle.
func (p *Poller) Poll(ctx context.Context) (Update, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	snap, err := p.api.State(reqCtx, p.cfg.SessionID, p.cfg.Address)
	cancel()
	if err == nil && (snap == nil || snap.Session == nil) {
		err = errors.New("empty snapshot")
	}

	p.mu.Lock()
	if errors.Is(err, game.ErrSessionNotFound) {
		// A later session may reuse the id with its counters restarted.
		p.last = nil
		p.resetVoteLocked()
	}
	if err != nil {
		p.stale = true
		update := Update{Err: err, Snapshot: p.last, View: Derive(p.last, p.cfg.Address)}
		update.View.Stale = true
		p.mu.Unlock()
		p.logger.Warn().Err(err).Msg("poll failed")
		p.handler(update)
		return update, err
	}

	var prevPhase game.Phase
	if p.last != nil {
		prevPhase = p.last.Session.Phase
	}
	if p.last == nil || !olderThan(snap, p.last) {
		p.last = snap
	}
	p.stale = false
	current := p.last
	view := Derive(current, p.cfg.Address)
	update := Update{
		View:         view,
		Snapshot:     current,
		PhaseChanged: prevPhase != view.Phase,
	}

	autoVote := -1
	if view.VotingOpen {
		if p.votingSeenAt.IsZero() {
			p.votingSeenAt = p.now()
		}
		if !view.HasVoted && !p.voted && !p.voteInFlight && p.now().Sub(p.votingSeenAt) >= p.cfg.VoteTimeout {
			p.voteInFlight = true
			autoVote = p.intn(view.Candidates)
		}
	} else if view.Phase != game.PhaseVoting {
		p.votingSeenAt = time.Time{}
	}
	inOrder := current.Session.InTurnOrder(p.cfg.Address)
	p.mu.Unlock()

	if update.PhaseChanged {
		p.logger.Info().Str("phase", string(view.Phase)).Str("artist", logging.ShortAddress(view.Artist)).Msg("phase changed")
	}
	if view.Phase == game.PhaseGenerating && p.cfg.AutoGenerate && inOrder {
		p.requestGeneration(ctx)
	}
	if autoVote >= 0 {
		p.submitAutoVote(ctx, autoVote)
	}
	p.handler(update)
	return update, nil
}

// olderThan reports whether next is behind last on either ordering field.
// A session created later is never older.
func olderThan(next, last *game.Snapshot) bool {
	if next.Session.CreatedAt.After(last.Session.CreatedAt) {
		return false
	}
	if next.Session.Version < last.Session.Version {
		return true
	}
	return next.Session.TurnSequence < last.Session.TurnSequence
}

func (p *Poller) requestGeneration(ctx context.Context) {
	if !p.generating.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.generating.Store(false)
		_, err := p.api.Generate(ctx, p.cfg.SessionID)
		switch {
		case err == nil:
			p.logger.Info().Msg("generation requested")
		case errors.Is(err, game.ErrGenerationInProgress), errors.Is(err, game.ErrWrongPhase):
			p.logger.Debug().Err(err).Msg("generation handled elsewhere")
		default:
			p.logger.Warn().Err(err).Msg("generation request failed")
		}
	}()
}

func (p *Poller) submitAutoVote(ctx context.Context, candidate int) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	_, err := p.api.Vote(reqCtx, p.cfg.SessionID, p.cfg.Address, candidate)
	p.finishVote(err)
	if err != nil && !errors.Is(err, game.ErrAlreadyVoted) {
		p.logger.Warn().Err(err).Int("candidate", candidate).Msg("auto vote failed, retrying next poll")
		return
	}
	p.logger.Info().Int("candidate", candidate).Msg("auto vote submitted")
}

// Vote submits an explicit choice. Once it succeeds the auto vote is
// cancelled; on failure the auto vote stays armed.
func (p *Poller) Vote(ctx context.Context, candidate int) (game.VoteResult, error) {
	p.mu.Lock()
	p.voteInFlight = true
	p.mu.Unlock()
	result, err := p.api.Vote(ctx, p.cfg.SessionID, p.cfg.Address, candidate)
	p.finishVote(err)
	return result, err
}

func (p *Poller) finishVote(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voteInFlight = false
	if err == nil || errors.Is(err, game.ErrAlreadyVoted) {
		p.voted = true
	}
}

func (p *Poller) resetVoteLocked() {
	p.votingSeenAt = time.Time{}
	p.voted = false
	p.voteInFlight = false
}

func (p *Poller) Leave(ctx context.Context) error {
	return p.api.Leave(ctx, p.cfg.SessionID, p.cfg.Address)
}

// Last returns the last-known-good snapshot and whether the most recent
// poll failed.
func (p *Poller) Last() (*game.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.stale
}
