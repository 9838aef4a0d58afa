package manager

import "errors"

var (
	// ErrSessionNotFound and ErrSessionNotConnected are caller errors,
	// surfaced synchronously and never retried.
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotConnected = errors.New("session is not connected")

	// ErrDriverInit marks a failed handshake start. The session is left in
	// auth_failure with the cause persisted; the user must reconnect.
	ErrDriverInit = errors.New("driver initialization failed")

	// ErrDriverCommand wraps send/logout failures. A single failed send
	// does not change the session status.
	ErrDriverCommand = errors.New("driver command failed")

	ErrCannotReconnect = errors.New("session can only reconnect from disconnected or auth_failure")
	ErrManagerClosed   = errors.New("manager is shut down")
)
