package store

import (
	"fmt"

	"artfusion/internal/game"
)

// txn buffers writes for one Update call. read returns nil, nil for
// missing keys.
type txn struct {
	sessionID string
	read      func(key string) ([]byte, error)
	writes    map[string][]byte
	order     []string
}

func newTxn(sessionID string, read func(key string) ([]byte, error)) *txn {
	return &txn{
		sessionID: sessionID,
		read:      read,
		writes:    make(map[string][]byte),
	}
}

func (t *txn) load(key string) ([]byte, error) {
	if value, ok := t.writes[key]; ok {
		return value, nil
	}
	return t.read(key)
}

func (t *txn) stage(key string, value []byte) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = value
}

func (t *txn) current() (*game.Session, error) {
	raw, err := t.load(sessionKey(t.sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return game.DecodeSession(raw)
}

func (t *txn) Session() (*game.Session, error) {
	session, err := t.current()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, game.ErrSessionNotFound
	}
	return session, nil
}

func (t *txn) PutSession(session *game.Session) error {
	if session == nil || session.ID != t.sessionID {
		return fmt.Errorf("%w: session id mismatch", game.ErrCorruptRecord)
	}
	prev, err := t.current()
	if err != nil {
		return err
	}
	if err := game.CheckSessionWrite(prev, session); err != nil {
		return err
	}
	next := session.Clone()
	next.Version = 1
	if prev != nil {
		next.Version = prev.Version + 1
	}
	data, err := game.EncodeSession(next)
	if err != nil {
		return err
	}
	t.stage(sessionKey(t.sessionID), data)
	session.Version = next.Version
	return nil
}

func (t *txn) DeleteSession() {
	keys := []string{
		sessionKey(t.sessionID),
		votesKey(t.sessionID),
		finalKey(t.sessionID),
		generationKey(t.sessionID),
		leaseKey(t.sessionID),
	}
	if session, err := t.current(); err == nil && session != nil {
		seen := make(map[string]struct{})
		for _, participant := range session.Participants {
			seen[participant.Address] = struct{}{}
		}
		for _, address := range session.TurnOrder {
			seen[address] = struct{}{}
		}
		for address := range seen {
			keys = append(keys, turnKey(t.sessionID, address))
		}
	}
	for _, key := range keys {
		t.stage(key, nil)
	}
}

func (t *txn) Turn(address string) (*game.DrawingTurn, error) {
	raw, err := t.load(turnKey(t.sessionID, address))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, game.ErrParticipantNotFound
	}
	return game.DecodeTurn(raw)
}

func (t *txn) PutTurn(turn *game.DrawingTurn) error {
	if turn == nil || turn.SessionID != t.sessionID {
		return fmt.Errorf("%w: drawing turn session mismatch", game.ErrCorruptRecord)
	}
	data, err := game.EncodeTurn(turn)
	if err != nil {
		return err
	}
	t.stage(turnKey(t.sessionID, turn.Address), data)
	return nil
}

func (t *txn) Votes() (game.VoteTally, error) {
	raw, err := t.load(votesKey(t.sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return game.VoteTally{}, nil
	}
	return game.DecodeVotes(raw)
}

func (t *txn) PutVotes(votes game.VoteTally) error {
	data, err := game.EncodeVotes(votes)
	if err != nil {
		return err
	}
	t.stage(votesKey(t.sessionID), data)
	return nil
}

func (t *txn) Final() (*game.FinalSelection, error) {
	raw, err := t.load(finalKey(t.sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return game.DecodeFinal(raw)
}

func (t *txn) PutFinal(final *game.FinalSelection) error {
	data, err := game.EncodeFinal(final)
	if err != nil {
		return err
	}
	t.stage(finalKey(t.sessionID), data)
	return nil
}
