package domain

import (
	"errors"
	"fmt"
)

// AccountState is the verification lifecycle of an account.
type AccountState string

const (
	StateUnverified AccountState = "UNVERIFIED"
	StateVerified   AccountState = "VERIFIED"
	StateDeleted    AccountState = "DELETED"
)

// AccountEvent is something that moves an account between states.
type AccountEvent string

const (
	EventRedeem      AccountEvent = "redeem"
	EventEmailChange AccountEvent = "email_change"
	EventDelete      AccountEvent = "delete"
)

var (
	// ErrInvalidTransition is returned for events the current state does not accept.
	ErrInvalidTransition = errors.New("invalid account state transition")
	// ErrTerminalState is returned for any event on a deleted account.
	ErrTerminalState = errors.New("account state is terminal")
	// ErrNotVerified is returned by operations that need a verified email.
	ErrNotVerified = errors.New("email not verified")
)

// NextState applies ev to from and returns the resulting state.
func NextState(from AccountState, ev AccountEvent) (AccountState, error) {
	if from == StateDeleted {
		return StateDeleted, ErrTerminalState
	}
	switch ev {
	case EventRedeem:
		switch from {
		case StateUnverified, StateVerified:
			return StateVerified, nil
		}
	case EventEmailChange:
		switch from {
		case StateUnverified, StateVerified:
			return StateUnverified, nil
		}
	case EventDelete:
		switch from {
		case StateUnverified, StateVerified:
			return StateDeleted, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// RequireVerified fails with ErrNotVerified unless state is Verified.
func RequireVerified(state AccountState) error {
	switch state {
	case StateVerified:
		return nil
	case StateDeleted:
		return ErrTerminalState
	default:
		return ErrNotVerified
	}
}
