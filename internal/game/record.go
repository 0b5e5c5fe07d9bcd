package game

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

const (
	KindSession    Kind = "session"
	KindTurn       Kind = "drawing_turn"
	KindVotes      Kind = "votes"
	KindGeneration Kind = "generation_result"
	KindFinal      Kind = "final_selection"
)

const recordSchema = 1

type envelope struct {
	Kind   Kind            `json:"kind"`
	Schema int             `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

func encodeRecord(kind Kind, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Schema: recordSchema, Data: data})
}

func decodeRecord(kind Kind, raw []byte, dest any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if env.Kind != kind {
		return fmt.Errorf("%w: kind %q, want %q", ErrCorruptRecord, env.Kind, kind)
	}
	if env.Schema != recordSchema {
		return fmt.Errorf("%w: %s schema %d", ErrCorruptRecord, kind, env.Schema)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s has no data", ErrCorruptRecord, kind)
	}
	decoder := json.NewDecoder(strings.NewReader(string(env.Data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, kind, err)
	}
	return nil
}

func EncodeSession(session *Session) ([]byte, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	return encodeRecord(KindSession, session)
}

func DecodeSession(raw []byte) (*Session, error) {
	var session Session
	if err := decodeRecord(KindSession, raw, &session); err != nil {
		return nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	return &session, nil
}

func EncodeTurn(turn *DrawingTurn) ([]byte, error) {
	if err := turn.Validate(); err != nil {
		return nil, err
	}
	return encodeRecord(KindTurn, turn)
}

func DecodeTurn(raw []byte) (*DrawingTurn, error) {
	var turn DrawingTurn
	if err := decodeRecord(KindTurn, raw, &turn); err != nil {
		return nil, err
	}
	if err := turn.Validate(); err != nil {
		return nil, err
	}
	return &turn, nil
}

func EncodeVotes(votes VoteTally) ([]byte, error) {
	if votes == nil {
		votes = VoteTally{}
	}
	return encodeRecord(KindVotes, votes)
}

func DecodeVotes(raw []byte) (VoteTally, error) {
	votes := VoteTally{}
	if err := decodeRecord(KindVotes, raw, &votes); err != nil {
		return nil, err
	}
	for address, candidate := range votes {
		if address == "" || candidate < 0 {
			return nil, fmt.Errorf("%w: vote %q=%d", ErrCorruptRecord, address, candidate)
		}
	}
	return votes, nil
}

func EncodeGeneration(result *GenerationResult) ([]byte, error) {
	return encodeRecord(KindGeneration, result)
}

func DecodeGeneration(raw []byte) (*GenerationResult, error) {
	var result GenerationResult
	if err := decodeRecord(KindGeneration, raw, &result); err != nil {
		return nil, err
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("%w: generation result has no images", ErrCorruptRecord)
	}
	return &result, nil
}

func EncodeFinal(final *FinalSelection) ([]byte, error) {
	return encodeRecord(KindFinal, final)
}

func DecodeFinal(raw []byte) (*FinalSelection, error) {
	var final FinalSelection
	if err := decodeRecord(KindFinal, raw, &final); err != nil {
		return nil, err
	}
	if final.Winner < 0 || final.Winner >= len(final.Counts) {
		return nil, fmt.Errorf("%w: winner %d out of range", ErrCorruptRecord, final.Winner)
	}
	return &final, nil
}

// Validate checks the structural invariants every stored session must hold.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrCorruptRecord)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: session id missing", ErrCorruptRecord)
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrCorruptRecord, s.Phase)
	}
	seen := make(map[string]struct{}, len(s.Participants))
	for _, participant := range s.Participants {
		if participant.Address == "" {
			return fmt.Errorf("%w: participant without address", ErrCorruptRecord)
		}
		if _, dup := seen[participant.Address]; dup {
			return fmt.Errorf("%w: duplicate participant %s", ErrCorruptRecord, participant.Address)
		}
		seen[participant.Address] = struct{}{}
	}
	if s.Phase == PhaseLobby {
		return nil
	}
	if len(s.TurnOrder) == 0 {
		return fmt.Errorf("%w: %s session without turn order", ErrCorruptRecord, s.Phase)
	}
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.TurnOrder) {
		return fmt.Errorf("%w: turn index %d out of range", ErrCorruptRecord, s.CurrentTurnIndex)
	}
	return nil
}

func (t *DrawingTurn) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil drawing turn", ErrCorruptRecord)
	}
	if t.SessionID == "" || t.Address == "" {
		return fmt.Errorf("%w: drawing turn missing key", ErrCorruptRecord)
	}
	if t.TurnIndex < 0 {
		return fmt.Errorf("%w: drawing turn index %d", ErrCorruptRecord, t.TurnIndex)
	}
	return nil
}

// CheckSessionWrite guards a replacement of prev by next. prev may be nil.
func CheckSessionWrite(prev, next *Session) error {
	if prev == nil {
		return nil
	}
	if next.Version < prev.Version {
		return fmt.Errorf("%w: version %d behind %d", ErrStaleWrite, next.Version, prev.Version)
	}
	if len(prev.Participants) > 0 && len(next.Participants) == 0 {
		return ErrEmptyParticipants
	}
	return nil
}
