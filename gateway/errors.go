package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionInvalid is the common ancestor of both session-terminating
	// failure modes. Callers that only care whether the session is gone can
	// match this one sentinel with errors.Is.
	ErrSessionInvalid = errors.New("gateway: session invalid")

	// ErrCredentialMissing means an auth-required call found no token. The
	// call was never attempted and the session was cleared.
	ErrCredentialMissing = fmt.Errorf("%w: missing credential", ErrSessionInvalid)

	// ErrSessionExpired means a response carried the session-expiry marker.
	// The session was cleared.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrSessionInvalid)

	// ErrStaleResult means the response resolved after the session changed
	// underneath the call. The body was discarded so a late success cannot
	// repopulate cleared state.
	ErrStaleResult = errors.New("gateway: result resolved after session change")
)

// Error is the normalized failure shape every caller sees. Message is
// always human-presentable; callers never branch on ad hoc response bodies.
type Error struct {
	// Message is extracted from the structured error body when available,
	// otherwise a generic fallback.
	Message string

	cause error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// newError builds a normalized Error, falling back to a generic message.
func newError(message, fallback string, cause error) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{Message: message, cause: cause}
}
