package game

import (
	"errors"
	"fmt"

	"github.com/wfunc/mafiaserver/room"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("room not found")
	ErrGameAlreadyStarted = room.ErrGameAlreadyStarted
	ErrSelfHealExhausted  = errors.New("the doctor can only heal themself once per game")
	ErrTooFewPlayers      = fmt.Errorf("%w: not enough players to start", ErrInvalidInput)

	// ErrUnauthorized and ErrIgnored are never reported to the client.
	ErrUnauthorized = errors.New("unauthorized")
	ErrIgnored      = errors.New("action ignored")
)

// IsSilent reports whether err should be swallowed instead of sent back.
func IsSilent(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrIgnored)
}
