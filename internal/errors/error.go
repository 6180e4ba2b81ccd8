package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCreationFailed = errors.New("session creation rejected")
	ErrRejectedMove   = errors.New("move rejected")
	ErrTransport      = errors.New("engine transport failure")
	ErrOutOfRange     = errors.New("history navigation out of range")

	ErrSessionNotFound = errors.New("session was not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNotReady    = errors.New("not all players have joined")
	ErrSeatTaken       = errors.New("seat already taken")
	ErrGameNotFound    = errors.New("game not found")
	ErrInternal        = errors.New("internal error")
)

// Refinements of ErrRejectedMove, so callers can match either the broad
// category or the exact cause with errors.Is.
var (
	ErrNotYourTurn      = fmt.Errorf("%w: not your turn", ErrRejectedMove)
	ErrGameOver         = fmt.Errorf("%w: game already over", ErrRejectedMove)
	ErrAwaitingDecision = fmt.Errorf("%w: opening decision pending", ErrRejectedMove)
)
