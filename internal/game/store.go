package game

import (
	"context"
	"time"
)

// Store is the shared session store. Implementations wrap transport
// failures with ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Set replaces the session record. Writes carrying an older Version,
	// or erasing a non-empty participant list, are rejected.
	Set(ctx context.Context, session *Session) error
	// Delete removes the session and every record keyed by it.
	Delete(ctx context.Context, sessionID string) error
	// Update runs fn against a consistent view of the session's records
	// and commits its writes atomically. fn may run more than once.
	Update(ctx context.Context, sessionID string, fn func(tx Tx) error) error

	Turn(ctx context.Context, sessionID, address string) (*DrawingTurn, error)
	SetTurn(ctx context.Context, turn *DrawingTurn) error
	Votes(ctx context.Context, sessionID string) (VoteTally, error)
	// Final returns nil without error when voting has not completed.
	Final(ctx context.Context, sessionID string) (*FinalSelection, error)

	GenerationResult(ctx context.Context, sessionID string) (*GenerationResult, error)
	SaveGenerationResult(ctx context.Context, sessionID string, result *GenerationResult, ttl time.Duration) error

	// AcquireLease returns a release token, or ErrGenerationInProgress
	// while another holder's lease is live.
	AcquireLease(ctx context.Context, sessionID string, ttl time.Duration) (string, error)
	ReleaseLease(ctx context.Context, sessionID, token string) error

	Ping(ctx context.Context) error
}

// Tx is the view handed to Store.Update. Reads observe the transaction's
// own pending writes.
type Tx interface {
	Session() (*Session, error)
	PutSession(session *Session) error
	DeleteSession()
	Turn(address string) (*DrawingTurn, error)
	PutTurn(turn *DrawingTurn) error
	Votes() (VoteTally, error)
	PutVotes(votes VoteTally) error
	// Final returns nil without error when no selection exists yet.
	Final() (*FinalSelection, error)
	PutFinal(final *FinalSelection) error
}
