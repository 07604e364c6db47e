//go:build unix

package pollpipe

import (
	"time"

	"golang.org/x/sys/unix"
)

// Timeout bounds how long Registry.Poll may block. The zero value is Instant.
type Timeout struct {
	d       time.Duration
	forever bool
}

var (
	// Forever blocks until at least one registered descriptor is ready.
	Forever = Timeout{forever: true}

	// Instant reports current readiness without blocking.
	Instant = Timeout{}
)

// After blocks for at most d. Non-positive durations are equivalent to
// Instant.
func After(d time.Duration) Timeout {
	if d <= 0 {
		return Instant
	}
	return Timeout{d: d}
}

// IsForever reports whether x blocks indefinitely.
func (x Timeout) IsForever() bool { return x.forever }

// Duration returns the maximum wait, and false if x is Forever.
func (x Timeout) Duration() (time.Duration, bool) {
	if x.forever {
		return 0, false
	}
	return x.d, true
}

// Milliseconds converts x for epoll_wait(2) and poll(2): -1 for Forever,
// otherwise the duration in whole milliseconds, rounded down.
func (x Timeout) Milliseconds() int {
	if x.forever {
		return -1
	}
	ms := x.d / time.Millisecond
	if ms > maxTimeoutMillis {
		return maxTimeoutMillis
	}
	return int(ms)
}

// maxTimeoutMillis is the largest value accepted by a C int timeout.
const maxTimeoutMillis = 1<<31 - 1

// Timespec converts x for kevent(2): nil for Forever.
func (x Timeout) Timespec() *unix.Timespec {
	if x.forever {
		return nil
	}
	ts := unix.NsecToTimespec(x.d.Nanoseconds())
	return &ts
}

// String implements fmt.Stringer.
func (x Timeout) String() string {
	switch {
	case x.forever:
		return "forever"
	case x.d == 0:
		return "instant"
	default:
		return x.d.String()
	}
}

// deadline tracks the time remaining for a finite Timeout, so that retrying an
// interrupted wait never extends the total time spent blocked.
type deadline struct {
	at      time.Time
	timeout Timeout
}

func newDeadline(timeout Timeout) deadline {
	d := deadline{timeout: timeout}
	if !timeout.forever && timeout.d > 0 {
		d.at = time.Now().Add(timeout.d)
	}
	return d
}

// remaining returns the Timeout to pass to the next wait.
func (x deadline) remaining() Timeout {
	if x.at.IsZero() {
		return x.timeout
	}
	return After(time.Until(x.at))
}
