package adapter

import "errors"

var (
	// ErrNoLoginCode is returned before any login code has been observed, or
	// after the last one was consumed by a successful login.
	ErrNoLoginCode = errors.New("no login code available")

	// ErrLoggedOut ends the supervisor: the device was unlinked and needs to
	// be paired again.
	ErrLoggedOut = errors.New("whatsapp session logged out")

	// ErrRestartLimit ends the supervisor when the restart policy gives up.
	ErrRestartLimit = errors.New("reconnect attempts exhausted")

	ErrAlreadyRunning = errors.New("session supervisor already running")
	ErrNilHandler     = errors.New("turn handler is required")
)
