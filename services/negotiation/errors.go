package negotiation

import "fmt"

// InvalidOfferError rejects an offer before any session state is created.
// User-correctable: the offer must be positive and below the base price.
type InvalidOfferError struct {
	Reason string
}

func (e *InvalidOfferError) Error() string {
	return fmt.Sprintf("invalidOffer: %s", e.Reason)
}

// IllegalTransitionError signals an operation invoked in a state that does
// not admit it. The operation is a no-op; nothing is mutated.
type IllegalTransitionError struct {
	Op    string
	State string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegalTransition: %s not allowed in state %q", e.Op, e.State)
}

// SessionNotFoundError signals an unknown or fully archived session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("sessionNotFound: %s", e.SessionID)
}
