package pollpipe

import (
	"errors"
)

// Standard errors.
var (
	ErrAlreadyRegistered  = errors.New("pollpipe: fd already registered")
	ErrNotRegistered      = errors.New("pollpipe: fd not registered")
	ErrInvalidFd          = errors.New("pollpipe: invalid fd")
	ErrRegistryClosed     = errors.New("pollpipe: registry closed")
	ErrClosed             = errors.New("pollpipe: pipe closed")
	ErrWouldBlock         = errors.New("pollpipe: operation would block")
	ErrBackendUnavailable = errors.New("pollpipe: backend unavailable on this platform")
)

// PollError reports a failure of the underlying readiness mechanism. Err is
// typically a unix.Errno.
type PollError struct {
	Err error
	// Op is the failed operation, e.g. "wait" or "register".
	Op string
	// Backend is the name of the readiness mechanism, e.g. "epoll".
	Backend string
}

// Error implements the error interface.
func (e *PollError) Error() string {
	msg := "pollpipe: " + e.Backend + " " + e.Op
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *PollError) Unwrap() error {
	return e.Err
}
