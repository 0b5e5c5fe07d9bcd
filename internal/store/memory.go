package store

import (
	"context"
	"sync"
	"time"

	"artfusion/internal/game"

	"github.com/google/uuid"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a single-process Store. Records are kept in their encoded
// form so reads never alias stored state.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     timeNowUTC,
	}
}

// read expects m.mu to be held.
func (m *Memory) read(key string) []byte {
	item, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return item.value
}

func (m *Memory) write(key string, value []byte, ttl time.Duration) {
	if value == nil {
		delete(m.entries, key)
		return
	}
	item := entry{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = item
}

func (m *Memory) Get(_ context.Context, sessionID string) (*game.Session, error) {
	m.mu.Lock()
	raw := m.read(sessionKey(sessionID))
	m.mu.Unlock()
	if raw == nil {
		return nil, game.ErrSessionNotFound
	}
	return game.DecodeSession(raw)
}

func (m *Memory) Set(ctx context.Context, session *game.Session) error {
	if session == nil {
		return game.ErrCorruptRecord
	}
	return m.Update(ctx, session.ID, func(tx game.Tx) error {
		return tx.PutSession(session)
	})
}

func (m *Memory) Delete(ctx context.Context, sessionID string) error {
	return m.Update(ctx, sessionID, func(tx game.Tx) error {
		tx.DeleteSession()
		return nil
	})
}

func (m *Memory) Update(ctx context.Context, sessionID string, fn func(tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newTxn(sessionID, func(key string) ([]byte, error) {
		return m.read(key), nil
	})
	if err := fn(tx); err != nil {
		return err
	}
	for _, key := range tx.order {
		m.write(key, tx.writes[key], 0)
	}
	return nil
}

func (m *Memory) Turn(_ context.Context, sessionID, address string) (*game.DrawingTurn, error) {
	m.mu.Lock()
	raw := m.read(turnKey(sessionID, address))
	m.mu.Unlock()
	if raw == nil {
		return nil, game.ErrParticipantNotFound
	}
	return game.DecodeTurn(raw)
}

func (m *Memory) SetTurn(_ context.Context, turn *game.DrawingTurn) error {
	data, err := game.EncodeTurn(turn)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(turnKey(turn.SessionID, turn.Address), data, 0)
	return nil
}

func (m *Memory) Votes(_ context.Context, sessionID string) (game.VoteTally, error) {
	m.mu.Lock()
	raw := m.read(votesKey(sessionID))
	m.mu.Unlock()
	if raw == nil {
		return game.VoteTally{}, nil
	}
	return game.DecodeVotes(raw)
}

func (m *Memory) Final(_ context.Context, sessionID string) (*game.FinalSelection, error) {
	m.mu.Lock()
	raw := m.read(finalKey(sessionID))
	m.mu.Unlock()
	if raw == nil {
		return nil, nil
	}
	return game.DecodeFinal(raw)
}

func (m *Memory) GenerationResult(_ context.Context, sessionID string) (*game.GenerationResult, error) {
	m.mu.Lock()
	raw := m.read(generationKey(sessionID))
	m.mu.Unlock()
	if raw == nil {
		return nil, game.ErrNoResult
	}
	return game.DecodeGeneration(raw)
}

func (m *Memory) SaveGenerationResult(_ context.Context, sessionID string, result *game.GenerationResult, ttl time.Duration) error {
	data, err := game.EncodeGeneration(result)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(generationKey(sessionID), data, ttl)
	return nil
}

func (m *Memory) AcquireLease(_ context.Context, sessionID string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := leaseKey(sessionID)
	if m.read(key) != nil {
		return "", game.ErrGenerationInProgress
	}
	token := uuid.NewString()
	m.write(key, []byte(token), ttl)
	return token, nil
}

func (m *Memory) ReleaseLease(_ context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := leaseKey(sessionID)
	if current := m.read(key); current != nil && string(current) == token {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}
