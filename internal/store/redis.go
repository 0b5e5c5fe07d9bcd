package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artfusion/internal/game"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 8

var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	store := NewRedis(redis.NewClient(opts))
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", game.ErrStoreUnavailable, err)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) get(ctx context.Context, cmd getter, key string) ([]byte, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return raw, nil
}

func (r *Redis) Get(ctx context.Context, sessionID string) (*game.Session, error) {
	raw, err := r.get(ctx, r.client, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, game.ErrSessionNotFound
	}
	return game.DecodeSession(raw)
}

func (r *Redis) Set(ctx context.Context, session *game.Session) error {
	if session == nil {
		return game.ErrCorruptRecord
	}
	return r.Update(ctx, session.ID, func(tx game.Tx) error {
		return tx.PutSession(session)
	})
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	return r.Update(ctx, sessionID, func(tx game.Tx) error {
		tx.DeleteSession()
		return nil
	})
}

// Update uses WATCH on every key fn reads and commits with MULTI/EXEC,
// retrying when a watched key changed underneath.
func (r *Redis) Update(ctx context.Context, sessionID string, fn func(tx game.Tx) error) error {
	var fnErr error
	attempt := func(rtx *redis.Tx) error {
		tx := newTxn(sessionID, func(key string) ([]byte, error) {
			if err := rtx.Watch(ctx, key).Err(); err != nil {
				return nil, unavailable(err)
			}
			return r.get(ctx, rtx, key)
		})
		if err := fn(tx); err != nil {
			fnErr = err
			return err
		}
		if len(tx.order) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range tx.order {
				if value := tx.writes[key]; value == nil {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, value, 0)
				}
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxUpdateAttempts; i++ {
		fnErr = nil
		err := r.client.Watch(ctx, attempt, sessionKey(sessionID))
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return unavailable(err)
		}
	}
	return fmt.Errorf("%w: session %s kept changing", game.ErrStaleWrite, sessionID)
}

func (r *Redis) Turn(ctx context.Context, sessionID, address string) (*game.DrawingTurn, error) {
	raw, err := r.get(ctx, r.client, turnKey(sessionID, address))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, game.ErrParticipantNotFound
	}
	return game.DecodeTurn(raw)
}

func (r *Redis) SetTurn(ctx context.Context, turn *game.DrawingTurn) error {
	data, err := game.EncodeTurn(turn)
	if err != nil {
		return err
	}
	return unavailable(r.client.Set(ctx, turnKey(turn.SessionID, turn.Address), data, 0).Err())
}

func (r *Redis) Votes(ctx context.Context, sessionID string) (game.VoteTally, error) {
	raw, err := r.get(ctx, r.client, votesKey(sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return game.VoteTally{}, nil
	}
	return game.DecodeVotes(raw)
}

func (r *Redis) Final(ctx context.Context, sessionID string) (*game.FinalSelection, error) {
	raw, err := r.get(ctx, r.client, finalKey(sessionID))
	if err != nil || raw == nil {
		return nil, err
	}
	return game.DecodeFinal(raw)
}

func (r *Redis) GenerationResult(ctx context.Context, sessionID string) (*game.GenerationResult, error) {
	raw, err := r.get(ctx, r.client, generationKey(sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, game.ErrNoResult
	}
	return game.DecodeGeneration(raw)
}

func (r *Redis) SaveGenerationResult(ctx context.Context, sessionID string, result *game.GenerationResult, ttl time.Duration) error {
	data, err := game.EncodeGeneration(result)
	if err != nil {
		return err
	}
	return unavailable(r.client.Set(ctx, generationKey(sessionID), data, ttl).Err())
}

func (r *Redis) AcquireLease(ctx context.Context, sessionID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, leaseKey(sessionID), token, ttl).Result()
	if err != nil {
		return "", unavailable(err)
	}
	if !ok {
		return "", game.ErrGenerationInProgress
	}
	return token, nil
}

func (r *Redis) ReleaseLease(ctx context.Context, sessionID, token string) error {
	err := releaseLease.Run(ctx, r.client, []string{leaseKey(sessionID)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return unavailable(err)
}

func (r *Redis) Ping(ctx context.Context) error {
	return unavailable(r.client.Ping(ctx).Err())
}
