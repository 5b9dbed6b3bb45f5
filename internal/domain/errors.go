package domain

import "errors"

// Domain errors
var (
	ErrGameNotFound         = errors.New("game not found")
	ErrInvalidRecord        = errors.New("invalid game record")
	ErrInvalidPhase         = errors.New("invalid phase")
	ErrTransitionNotAllowed = errors.New("phase transition not allowed")
	ErrDuplicateVote        = errors.New("duplicate vote for voter and song")
	ErrDuplicateName        = errors.New("duplicate participant name")
	ErrUnknownRevealedSong  = errors.New("revealed song is not part of the game")
)
