//go:build unix

package pollpipe

import (
	"iter"
)

// Event is a single poll result: the token of a ready registration, and the
// readiness observed.
type Event struct {
	Token  Token
	Events IOEvents
}

// EventIter is a forward-only view over one Poll cycle's results. Each event
// is yielded once. An EventIter yields nothing once its Registry has been
// polled again or closed, as the underlying buffer is reused.
type EventIter struct {
	reg   *Registry
	cycle uint64
	pos   int
}

func (x *EventIter) valid() bool {
	return x != nil && x.reg != nil && x.cycle == x.reg.cycle
}

// Next returns the next event, and false once the cycle is exhausted.
func (x *EventIter) Next() (Event, bool) {
	if !x.valid() || x.pos >= len(x.reg.events) {
		return Event{}, false
	}
	ev := x.reg.events[x.pos]
	x.pos++
	return ev, true
}

// Len returns the number of events not yet consumed.
func (x *EventIter) Len() int {
	if !x.valid() {
		return 0
	}
	return len(x.reg.events) - x.pos
}

// All returns a sequence consuming the remaining events, as (token, events)
// pairs, in the order reported by the OS.
func (x *EventIter) All() iter.Seq2[Token, IOEvents] {
	return func(yield func(Token, IOEvents) bool) {
		for {
			ev, ok := x.Next()
			if !ok || !yield(ev.Token, ev.Events) {
				return
			}
		}
	}
}
