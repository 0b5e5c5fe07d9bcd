package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"artfusion/internal/db"
	"artfusion/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// persistEvent appends to the audit log. It is a no-op without a database.
func (s *Server) persistEvent(ctx context.Context, sessionID, address, eventType string, phase game.Phase, payload EventPayload) error {
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := db.Event{
		SessionID: sessionID,
		Address:   address,
		Type:      eventType,
		Phase:     string(phase),
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&event).Error
}

// recordEvent is persistEvent for handlers: failures are logged, never
// surfaced to the caller.
func (s *Server) recordEvent(ctx context.Context, sessionID, address, eventType string, phase game.Phase, payload EventPayload) {
	if err := s.persistEvent(ctx, sessionID, address, eventType, phase, payload); err != nil {
		s.logger.Error().Err(err).
			Str("session_id", sessionID).
			Str("event", eventType).
			Msg("persist event failed")
	}
}

func (s *Server) listEvents(ctx context.Context, sessionID string, limit int) ([]db.Event, error) {
	var events []db.Event
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// gormMinter archives the winning artwork with its stakes, contributions
// and votes. Minting the same session twice returns the first asset id.
type gormMinter struct {
	db *gorm.DB
}

func (m *gormMinter) Mint(ctx context.Context, req game.MintRequest) (string, error) {
	now := time.Now().UTC()
	artwork := db.Artwork{
		ID:             uuid.NewString(),
		SessionID:      req.SessionID,
		Title:          req.Title,
		Image:          req.Image,
		CombinedPrompt: req.CombinedPrompt,
		CreatedAt:      now,
	}
	for _, stake := range req.Stakes {
		artwork.Stakes = append(artwork.Stakes, db.ArtworkStake{
			Address:   stake.Address,
			Percent:   stake.Percent,
			CreatedAt: now,
		})
	}
	for _, turn := range req.Contributions {
		artwork.Contributions = append(artwork.Contributions, db.Contribution{
			Address:     turn.Address,
			TurnIndex:   turn.TurnIndex,
			Prompt:      turn.Prompt,
			DrawingData: turn.DrawingData,
			CreatedAt:   now,
		})
	}
	voters := make([]string, 0, len(req.Votes))
	for address := range req.Votes {
		voters = append(voters, address)
	}
	sort.Strings(voters)
	for _, address := range voters {
		artwork.Votes = append(artwork.Votes, db.ArtworkVote{
			Address:   address,
			Candidate: req.Votes[address],
			CreatedAt: now,
		})
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&artwork).Error
	})
	if err == nil {
		return artwork.ID, nil
	}
	if !isUniqueViolation(err) {
		return "", err
	}
	var existing db.Artwork
	if lookupErr := m.db.WithContext(ctx).Where("session_id = ?", req.SessionID).First(&existing).Error; lookupErr != nil {
		return "", err
	}
	return existing.ID, nil
}

type memoryMinter struct {
	mu     sync.Mutex
	assets map[string]string
}

func newMemoryMinter() *memoryMinter {
	return &memoryMinter{assets: make(map[string]string)}
}

func (m *memoryMinter) Mint(_ context.Context, req game.MintRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.assets[req.SessionID]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.assets[req.SessionID] = id
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
