package types

import (
	"errors"
	"fmt"
)

// DisconnectReason is the status code attached to a closed connection.
type DisconnectReason int

const (
	ReasonLoggedOut           DisconnectReason = 401
	ReasonTemporaryBan        DisconnectReason = 402
	ReasonClientOutdated      DisconnectReason = 405
	ReasonTimedOut            DisconnectReason = 408
	ReasonConnectionLost      DisconnectReason = 408
	ReasonMultideviceMismatch DisconnectReason = 411
	ReasonConnectionClosed    DisconnectReason = 428
	ReasonConnectionReplaced  DisconnectReason = 440
	ReasonBadSession          DisconnectReason = 500
	ReasonRestartRequired     DisconnectReason = 515
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged out"
	case ReasonTemporaryBan:
		return "temporarily banned"
	case ReasonClientOutdated:
		return "client outdated"
	case ReasonConnectionLost:
		return "connection lost"
	case ReasonMultideviceMismatch:
		return "multi-device mismatch"
	case ReasonConnectionClosed:
		return "connection closed"
	case ReasonConnectionReplaced:
		return "connection replaced"
	case ReasonBadSession:
		return "bad session"
	case ReasonRestartRequired:
		return "restart required"
	default:
		return fmt.Sprintf("status %d", int(r))
	}
}

// DisconnectError explains why a connection closed.
type DisconnectError struct {
	Reason DisconnectReason
	Err    error
}

// NewDisconnectError wraps cause with a disconnect reason.
func NewDisconnectError(reason DisconnectReason, cause error) *DisconnectError {
	return &DisconnectError{Reason: reason, Err: cause}
}

func (e *DisconnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason.String()
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the disconnect reason from err. Errors that carry no
// reason count as a plain closed connection.
func ReasonOf(err error) DisconnectReason {
	var de *DisconnectError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ReasonConnectionClosed
}

// ShouldReconnect reports whether a close with this error warrants a new
// session. Only an explicit logout is terminal.
func ShouldReconnect(err error) bool {
	return ReasonOf(err) != ReasonLoggedOut
}
