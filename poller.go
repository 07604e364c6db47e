//go:build unix

package pollpipe

import (
	"errors"

	"golang.org/x/sys/unix"
)

// poller is the readiness mechanism driven by a Registry. Implementations
// return raw errors (typically unix.Errno), which the Registry wraps.
type poller interface {
	backend() Backend
	add(fd int, interest IOEvents) error
	modify(fd int, old, interest IOEvents) error
	remove(fd int, old IOEvents) error
	// wait blocks for up to timeout, appending at most n ready descriptors to
	// dst. Each fd appears at most once per call.
	wait(dst []readyFd, n int, timeout Timeout) ([]readyFd, error)
	close() error
}

// readyFd is a raw result entry, prior to token lookup.
type readyFd struct {
	fd     int
	events IOEvents
}

// isGoneErr reports whether err indicates the kernel no longer tracks the fd,
// e.g. it was closed before being unregistered.
func isGoneErr(err error) bool {
	return errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT)
}
