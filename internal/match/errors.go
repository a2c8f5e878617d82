package match

import "errors"

// Code is the stable numeric identity of a game error.
type Code uint32

const (
	CodeNotInitialized Code = iota + 1
	CodeInvalidPhase
	CodeNotAPlayer
	CodeNotYourTurn
	CodeAlreadyCommitted
	CodeOutOfBounds
	CodeAlreadyShot
	CodeProofInvalid
	CodeGameOver
	CodeInvalidResponse
)

var codeNames = map[Code]string{
	CodeNotInitialized:   "NotInitialized",
	CodeInvalidPhase:     "InvalidPhase",
	CodeNotAPlayer:       "NotAPlayer",
	CodeNotYourTurn:      "NotYourTurn",
	CodeAlreadyCommitted: "AlreadyCommitted",
	CodeOutOfBounds:      "OutOfBounds",
	CodeAlreadyShot:      "AlreadyShot",
	CodeProofInvalid:     "ProofInvalid",
	CodeGameOver:         "GameOver",
	CodeInvalidResponse:  "InvalidResponse",
}

func (c Code) String() string { return codeNames[c] }

// Error is a rule violation reported to the caller. Operations that fail with
// one of these have not changed any state.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrNotInitialized   = &Error{CodeNotInitialized, "game not found or not initialized"}
	ErrInvalidPhase     = &Error{CodeInvalidPhase, "action not allowed in current game phase"}
	ErrNotAPlayer       = &Error{CodeNotAPlayer, "caller is not a participant in this game"}
	ErrNotYourTurn      = &Error{CodeNotYourTurn, "not this player's turn"}
	ErrAlreadyCommitted = &Error{CodeAlreadyCommitted, "fleet already committed by this player"}
	ErrOutOfBounds      = &Error{CodeOutOfBounds, "shot coordinates out of bounds (must be 0-9)"}
	ErrAlreadyShot      = &Error{CodeAlreadyShot, "coordinate already targeted"}
	ErrProofInvalid     = &Error{CodeProofInvalid, "proof verification failed"}
	ErrGameOver         = &Error{CodeGameOver, "game already finished"}
	ErrInvalidResponse  = &Error{CodeInvalidResponse, "invalid response value (must be 0 or 1)"}
)

// CodeOf extracts the game error code from err.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
