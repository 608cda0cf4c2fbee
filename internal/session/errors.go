package session

import "errors"

var (
	// ErrActionInFlight is returned when an action is requested while another runs.
	ErrActionInFlight = errors.New("another action is in flight")

	// ErrActionNotAllowed is returned when the current phase does not offer the action.
	ErrActionNotAllowed = errors.New("action not allowed in current phase")

	// ErrNoSigner is returned when an action needs an attached signer.
	ErrNoSigner = errors.New("no signer attached")

	// ErrDuplicateRequest is returned when a request id was already submitted.
	ErrDuplicateRequest = errors.New("request already submitted")

	// ErrNothingToWatch is returned by Watch without a subscription or interval.
	ErrNothingToWatch = errors.New("nothing to watch")
)
