package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	ErrNotFound          = errors.New("record not found")
	ErrNoLocation        = errors.New("requester location unknown")
	ErrAlreadyAccepted   = errors.New("request already has an accepted offer")
	ErrOfferTerminal     = errors.New("offer already in a terminal state")
	ErrOfferMismatch     = errors.New("offer does not belong to request")
	ErrBadTransition     = errors.New("illegal status transition")
	ErrInvalidProfile    = errors.New("invalid mechanic profile")
	ErrInvalidRequest    = errors.New("invalid assistance request")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

// ConsistencyError reports a partial acceptance transaction: one of the two
// records (offer, request) was updated while the other write failed, leaving
// the store in a divergent state that needs operator attention.
type ConsistencyError struct {
	OfferID   string
	RequestID string
	Wrapped   error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("acceptance left offer %s and request %s inconsistent: %v",
		e.OfferID, e.RequestID, e.Wrapped)
}

func (e *ConsistencyError) Unwrap() error { return e.Wrapped }

// TransitionError wraps ErrBadTransition with the attempted move.
type TransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrBadTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrBadTransition }
