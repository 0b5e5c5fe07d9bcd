package game

import "errors"

var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrNotYourTurn              = errors.New("not your turn")
	ErrRequirementsNotMet       = errors.New("drawing and prompt required before locking")
	ErrInsufficientParticipants = errors.New("at least two participants required")
	ErrGenerationInProgress     = errors.New("generation already in progress")
	ErrGenerationFailed         = errors.New("generation failed")
	ErrStoreUnavailable         = errors.New("store unavailable")

	ErrWrongPhase        = errors.New("invalid phase for action")
	ErrNotHost           = errors.New("only host can perform this action")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrInvalidCandidate  = errors.New("invalid candidate")
	ErrTurnLocked        = errors.New("turn already locked")
	ErrSessionStarted    = errors.New("session already started")
	ErrNoResult          = errors.New("no generation result")
	ErrEmptyParticipants = errors.New("refusing to erase participants")
	ErrStaleWrite        = errors.New("stale session write")
	ErrCorruptRecord     = errors.New("corrupt record")
)

// Retryable reports whether the caller may re-invoke the operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrGenerationFailed) ||
		errors.Is(err, ErrStaleWrite)
}
