//go:build unix

package pollpipe

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// Pollable is implemented by resources that wrap a single OS descriptor.
type Pollable interface {
	// Fd returns the underlying descriptor, or -1 if it has been closed.
	Fd() int
}

// binder is implemented by resources that track the Registry they are
// registered with, so closing them can remove the registration first.
type binder interface {
	bind(r *Registry) bool
	unbind(r *Registry)
}

// registration stores per-fd interest. It holds no reference to the
// resource, which remains owned by the caller.
type registration struct {
	token    Token
	interest IOEvents
}

// Registry associates descriptors with tokens and interest masks, and polls
// them for readiness.
//
// A Registry is not safe for concurrent use. Registered resources must
// outlive their registration: unregister a descriptor before closing it, or
// use the pipe ends from this package, which do so on Close. Behavior is
// undefined if a descriptor number is reused by an unrelated resource while
// still registered.
type Registry struct {
	poller poller
	logger *logiface.Logger[logiface.Event]
	regs   map[int]registration
	ready  []readyFd
	events []Event
	cycle  uint64 // incremented by each Poll, invalidates older iterators
	closed bool
}

// NewRegistry creates an empty Registry, owning a new OS polling handle.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg, err := resolveRegistryOptions(opts)
	if err != nil {
		return nil, err
	}

	p, err := openPoller(cfg.backend, cfg.eventCapacity)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, fmt.Errorf("%w: %s", err, cfg.backend)
		}
		return nil, &PollError{Op: "open", Backend: cfg.backend.String(), Err: err}
	}

	return newRegistry(p, cfg), nil
}

func newRegistry(p poller, cfg *registryOptions) *Registry {
	r := &Registry{
		poller: p,
		logger: cfg.logger,
		regs:   make(map[int]registration, cfg.eventCapacity),
		ready:  make([]readyFd, 0, cfg.eventCapacity),
		events: make([]Event, 0, cfg.eventCapacity),
	}

	r.logger.Debug().
		Stringer("backend", p.backend()).
		Log("registry opened")

	return r
}

// Backend returns the readiness mechanism in use.
func (r *Registry) Backend() Backend {
	return r.poller.backend()
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return len(r.regs)
}

// Register adds a registration for p's descriptor, with the given token and
// interest. It fails with ErrAlreadyRegistered if the descriptor is already
// registered, or if p is a pipe end registered with another Registry.
func (r *Registry) Register(p Pollable, token Token, interest IOEvents) error {
	fd, err := r.pollableFd(p)
	if err != nil {
		return err
	}
	if _, ok := r.regs[fd]; ok {
		return ErrAlreadyRegistered
	}

	b, _ := p.(binder)
	if b != nil && !b.bind(r) {
		return ErrAlreadyRegistered
	}

	if err := r.poller.add(fd, interest); err != nil {
		if b != nil {
			b.unbind(r)
		}
		return r.ctlError("register", err)
	}
	r.regs[fd] = registration{token: token, interest: interest}

	r.logger.Debug().
		Int("fd", fd).
		Uint64("token", uint64(token)).
		Stringer("interest", interest).
		Log("registered")

	return nil
}

// Reregister replaces the token and interest of the existing registration for
// p's descriptor. It fails with ErrNotRegistered if there is none.
func (r *Registry) Reregister(p Pollable, token Token, interest IOEvents) error {
	fd, err := r.pollableFd(p)
	if err != nil {
		return err
	}
	reg, ok := r.regs[fd]
	if !ok {
		return ErrNotRegistered
	}

	if err := r.poller.modify(fd, reg.interest, interest); err != nil {
		return r.ctlError("reregister", err)
	}
	r.regs[fd] = registration{token: token, interest: interest}

	r.logger.Debug().
		Int("fd", fd).
		Uint64("token", uint64(token)).
		Stringer("interest", interest).
		Log("reregistered")

	return nil
}

// Unregister removes the registration for p's descriptor. It fails with
// ErrNotRegistered if there is none, including on a second call.
func (r *Registry) Unregister(p Pollable) error {
	fd, err := r.pollableFd(p)
	if err != nil {
		return err
	}
	if _, ok := r.regs[fd]; !ok {
		return ErrNotRegistered
	}
	if b, ok := p.(binder); ok {
		b.unbind(r)
	}
	return r.unregister(fd)
}

// unregister removes a registration known to exist. The table entry is
// always removed, even if the backend fails.
func (r *Registry) unregister(fd int) error {
	reg := r.regs[fd]
	delete(r.regs, fd)

	r.logger.Debug().
		Int("fd", fd).
		Uint64("token", uint64(reg.token)).
		Log("unregistered")

	if err := r.poller.remove(fd, reg.interest); err != nil {
		if !isGoneErr(err) {
			return r.ctlError("unregister", err)
		}
		// a duplicate of the closed fd may keep it registered with the kernel
		r.logger.Warning().
			Int("fd", fd).
			Err(err).
			Log("unregistered descriptor was already closed")
	}
	return nil
}

// registered reports whether fd has a registration, for use by pipe ends.
func (r *Registry) registered(fd int) bool {
	if r.closed {
		return false
	}
	_, ok := r.regs[fd]
	return ok
}

// maxStaleWaits bounds how many consecutive waits a Forever poll makes when
// the backend reports only descriptors without a registration.
const maxStaleWaits = 3

// Poll blocks until at least one registered descriptor is ready, or the
// timeout elapses, and returns an iterator over this cycle's results.
//
// The iterator is only valid until the next call to Poll or Close. Signal
// interruptions are retried without extending the total wait.
//
// An empty result is normally only possible for a finite timeout. If a
// descriptor was closed without being unregistered first, while a duplicate
// of it remains open, epoll may keep reporting it after Unregister. Such
// results are dropped: a finite poll may then return early and empty, and a
// Forever poll returns empty after a few consecutive waits rather than
// spinning.
func (r *Registry) Poll(timeout Timeout) (*EventIter, error) {
	if r.closed {
		return nil, ErrRegistryClosed
	}

	r.cycle++
	r.events = r.events[:0]
	dl := newDeadline(timeout)

	for stale := 0; ; {
		var err error
		r.ready, err = r.poller.wait(r.ready[:0], max(len(r.regs), 1), dl.remaining())
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				r.logger.Debug().
					Stringer("timeout", timeout).
					Log("poll interrupted, retrying")
				continue
			}
			pollErr := &PollError{Op: "wait", Backend: r.poller.backend().String(), Err: err}
			r.logger.Err().
				Err(pollErr).
				Log("poll failed")
			return nil, pollErr
		}

		for _, rd := range r.ready {
			reg, ok := r.regs[rd.fd]
			if !ok {
				r.logger.Debug().
					Int("fd", rd.fd).
					Stringer("events", rd.events).
					Log("poll ignored unregistered descriptor")
				continue
			}
			r.events = append(r.events, Event{Token: reg.token, Events: rd.events})
		}

		if len(r.events) == 0 && timeout.IsForever() {
			if len(r.ready) == 0 {
				continue
			}
			// only stale kernel entries were reported
			if stale++; stale < maxStaleWaits {
				continue
			}
			r.logger.Warning().
				Int("stale", len(r.ready)).
				Log("poll reported only unregistered descriptors")
		}
		break
	}

	r.logger.Trace().
		Int("ready", len(r.events)).
		Stringer("timeout", timeout).
		Log("poll")

	return &EventIter{reg: r, cycle: r.cycle}, nil
}

// Close releases the OS polling handle and drops every registration. Pipe
// ends registered with r are released from it. Close is idempotent.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cycle++
	r.regs = nil
	r.ready = nil
	r.events = nil

	err := r.poller.close()
	if err != nil {
		err = &PollError{Op: "close", Backend: r.poller.backend().String(), Err: err}
	}

	if b := r.logger.Debug(); b.Enabled() {
		if err != nil {
			b = b.Err(err)
		}
		b.Log("registry closed")
	}

	return err
}

func (r *Registry) pollableFd(p Pollable) (int, error) {
	if r.closed {
		return -1, ErrRegistryClosed
	}
	if p == nil {
		return -1, ErrInvalidFd
	}
	fd := p.Fd()
	if fd < 0 {
		return -1, ErrInvalidFd
	}
	return fd, nil
}

func (r *Registry) ctlError(op string, err error) error {
	pollErr := &PollError{Op: op, Backend: r.poller.backend().String(), Err: err}
	if errors.Is(err, unix.EBADF) {
		return fmt.Errorf("%w: %w", ErrInvalidFd, pollErr)
	}
	return pollErr
}
