//go:build darwin

package pollpipe

import (
	"golang.org/x/sys/unix"
)

func openPoller(b Backend, capacity int) (poller, error) {
	switch b {
	case BackendAuto, BackendKqueue:
		return newKqueuePoller(capacity)
	case BackendPoll:
		return newPollPoller(capacity), nil
	default:
		return nil, ErrBackendUnavailable
	}
}

// kqueuePoller manages readiness using kqueue (Darwin). Each fd maps to up to
// two filters, whose results are merged into a single readyFd per wait.
type kqueuePoller struct {
	kq      int
	changes []unix.Kevent_t
	buf     []unix.Kevent_t
	index   map[int]int // fd -> position in dst, for the current wait
}

func newKqueuePoller(capacity int) (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:    kq,
		buf:   make([]unix.Kevent_t, 2*capacity),
		index: make(map[int]int, capacity),
	}, nil
}

func (p *kqueuePoller) backend() Backend { return BackendKqueue }

func (p *kqueuePoller) add(fd int, interest IOEvents) error {
	// an empty interest applies no changes, which would accept any fd
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return err
	}
	return p.apply(p.appendChanges(p.changes[:0], fd, interest, unix.EV_ADD|unix.EV_ENABLE))
}

func (p *kqueuePoller) modify(fd int, old, interest IOEvents) error {
	changes := p.appendChanges(p.changes[:0], fd, filterEvents(old)&^filterEvents(interest), unix.EV_DELETE)
	changes = p.appendChanges(changes, fd, filterEvents(interest)&^filterEvents(old), unix.EV_ADD|unix.EV_ENABLE)
	return p.apply(changes)
}

func (p *kqueuePoller) remove(fd int, old IOEvents) error {
	return p.apply(p.appendChanges(p.changes[:0], fd, old, unix.EV_DELETE))
}

func (p *kqueuePoller) apply(changes []unix.Kevent_t) error {
	p.changes = changes
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) appendChanges(changes []unix.Kevent_t, fd int, events IOEvents, flags int) []unix.Kevent_t {
	if events&readFilterEvents != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, fd, unix.EVFILT_READ, flags)
		changes = append(changes, k)
	}
	if events&EventWritable != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, k)
	}
	return changes
}

func (p *kqueuePoller) wait(dst []readyFd, n int, timeout Timeout) ([]readyFd, error) {
	if len(p.buf) < 2*n {
		p.buf = make([]unix.Kevent_t, 2*n)
	}
	count, err := unix.Kevent(p.kq, nil, p.buf[:2*n], timeout.Timespec())
	if err != nil {
		return dst, err
	}
	clear(p.index)
	for i := 0; i < count; i++ {
		fd := int(p.buf[i].Ident)
		events := keventToEvents(&p.buf[i])
		if j, ok := p.index[fd]; ok {
			dst[j].events |= events
			continue
		}
		p.index[fd] = len(dst)
		dst = append(dst, readyFd{fd: fd, events: events})
	}
	return dst, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}

// readFilterEvents select EVFILT_READ, which also reports EOF and errors.
const readFilterEvents = readableEvents | EventHangup | errorEvents

// filterEvents reduces events to the flags that select a kqueue filter.
func filterEvents(events IOEvents) IOEvents {
	var filters IOEvents
	if events&readFilterEvents != 0 {
		filters |= EventReadable
	}
	if events&EventWritable != 0 {
		filters |= EventWritable
	}
	return filters
}

// keventToEvents converts a kevent to IOEvents.
func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventReadable
	case unix.EVFILT_WRITE:
		events |= EventWritable
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
