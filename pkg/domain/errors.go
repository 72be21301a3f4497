package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// Transport failures. The state machine converts both into apology events.
var (
	// ErrNetwork is a fetch/transport failure.
	ErrNetwork = errors.New("network error")
	// ErrProtocol is a non-success HTTP status or a payload missing expected fields.
	ErrProtocol = errors.New("protocol error")
)

// ErrValidation is the parent of every rejected submission. Rejections leave the state untouched.
var ErrValidation = errors.New("validation error")

var (
	ErrBusy            = fmt.Errorf("%w: a call is already in flight", ErrValidation)
	ErrEmptyInput      = fmt.Errorf("%w: input is empty", ErrValidation)
	ErrNoSession       = fmt.Errorf("%w: no active session", ErrValidation)
	ErrAlreadyStarted  = fmt.Errorf("%w: conversation already started", ErrValidation)
	ErrUnexpectedInput = fmt.Errorf("%w: flow is not waiting for this kind of input", ErrValidation)
	ErrInvalidAnswer   = fmt.Errorf("%w: confirmation answer must be yes or no", ErrValidation)
	ErrEventNotFound   = fmt.Errorf("%w: event not found", ErrValidation)
	ErrNotBranch       = fmt.Errorf("%w: event is not a branch prompt", ErrValidation)
	ErrOptionResolved  = fmt.Errorf("%w: branch already resolved", ErrValidation)
	ErrUnknownOption   = fmt.Errorf("%w: option is not offered by this branch", ErrValidation)
)

// IsValidation reports whether err is a rejected submission.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
