//go:build unix

package pollpipe

import (
	"iter"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// IOEvents is a set of readiness or interest flags.
//
// The zero value is the empty set, meaning "no interest" when registering, and
// "not ready" when observed.
type IOEvents uint16

const (
	// EventReadable indicates data may be read without blocking.
	EventReadable IOEvents = 1 << iota
	// EventWritable indicates data may be written without blocking.
	EventWritable
	// EventError indicates an error condition on the descriptor.
	EventError
	// EventHangup indicates the peer closed its end, e.g. the write end of a
	// pipe was closed.
	EventHangup
	// EventInvalid indicates the descriptor is not open.
	EventInvalid
	// EventPriority indicates priority (out-of-band) data may be read.
	EventPriority
)

// allEvents is the set of flags this package models, in native bit order.
var allEvents = [...]struct {
	flag   IOEvents
	native int16
	name   string
}{
	{EventReadable, unix.POLLIN, "Readable"},
	{EventPriority, unix.POLLPRI, "Priority"},
	{EventWritable, unix.POLLOUT, "Writable"},
	{EventError, unix.POLLERR, "Error"},
	{EventHangup, unix.POLLHUP, "Hangup"},
	{EventInvalid, unix.POLLNVAL, "Invalid"},
}

const (
	readableEvents = EventReadable | EventPriority
	errorEvents    = EventError | EventInvalid
)

// Union returns the set of flags present in x or any of others.
func (x IOEvents) Union(others ...IOEvents) IOEvents {
	for _, o := range others {
		x |= o
	}
	return x
}

// Intersects reports whether x and o have at least one flag in common.
func (x IOEvents) Intersects(o IOEvents) bool { return x&o != 0 }

// Contains reports whether every flag in flag is present in x. The empty set
// is contained in every set.
func (x IOEvents) Contains(flag IOEvents) bool { return x&flag == flag }

// Without returns x with every flag in o removed.
func (x IOEvents) Without(o IOEvents) IOEvents { return x &^ o }

// IsEmpty reports whether no flags are set.
func (x IOEvents) IsEmpty() bool { return x == 0 }

// Flags yields each flag set in x, in native bit order. Bits this package
// does not model are skipped.
func (x IOEvents) Flags() iter.Seq[IOEvents] {
	return func(yield func(IOEvents) bool) {
		for _, e := range allEvents {
			if x&e.flag != 0 && !yield(e.flag) {
				return
			}
		}
	}
}

// IsReadable reports whether x indicates normal or priority data is readable.
func (x IOEvents) IsReadable() bool { return x.Intersects(readableEvents) }

// IsWritable reports whether x indicates the descriptor is writable.
func (x IOEvents) IsWritable() bool { return x.Intersects(EventWritable) }

// IsError reports whether x indicates an error, including an invalid
// descriptor.
func (x IOEvents) IsError() bool { return x.Intersects(errorEvents) }

// IsHangup reports whether x includes EventHangup.
func (x IOEvents) IsHangup() bool { return x.Intersects(EventHangup) }

// ToNative converts x to the poll(2) events bitmask. Flags this package does
// not model are never set.
func (x IOEvents) ToNative() int16 {
	var native int16
	for _, e := range allEvents {
		if x&e.flag != 0 {
			native |= e.native
		}
	}
	return native
}

// EventsFromNative converts a poll(2) revents bitmask to IOEvents. Native bits
// without a corresponding flag (e.g. POLLRDNORM) are ignored.
func EventsFromNative(native int16) IOEvents {
	var x IOEvents
	for _, e := range allEvents {
		if native&e.native != 0 {
			x |= e.flag
		}
	}
	return x
}

// String implements fmt.Stringer, e.g. "Readable|Hangup". The empty set is
// formatted as "0".
func (x IOEvents) String() string {
	if x == 0 {
		return "0"
	}
	var b strings.Builder
	for _, e := range allEvents {
		if x&e.flag == 0 {
			continue
		}
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(e.name)
	}
	if rest := x &^ (readableEvents | EventWritable | errorEvents | EventHangup); rest != 0 {
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString("0x")
		b.WriteString(strconv.FormatUint(uint64(rest), 16))
	}
	return b.String()
}

// Token is an opaque, caller-chosen identifier, used to correlate a
// registration with the events it produces. Tokens need not be unique, but
// registrations sharing a token are indistinguishable in poll results.
type Token uint64
