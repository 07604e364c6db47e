//go:build linux

package pollpipe

import (
	"golang.org/x/sys/unix"
)

func openPoller(b Backend, capacity int) (poller, error) {
	switch b {
	case BackendAuto, BackendEpoll:
		return newEpollPoller(capacity)
	case BackendPoll:
		return newPollPoller(capacity), nil
	default:
		return nil, ErrBackendUnavailable
	}
}

// epollPoller manages readiness using level-triggered epoll (Linux).
type epollPoller struct {
	epfd int
	buf  []unix.EpollEvent // Reused across waits, grows on demand
}

func newEpollPoller(capacity int) (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd, buf: make([]unix.EpollEvent, capacity)}, nil
}

func (p *epollPoller) backend() Backend { return BackendEpoll }

func (p *epollPoller) add(fd int, interest IOEvents) error {
	ev := &unix.EpollEvent{
		Events: eventsToEpoll(interest),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) modify(fd int, _, interest IOEvents) error {
	ev := &unix.EpollEvent{
		Events: eventsToEpoll(interest),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) remove(fd int, _ IOEvents) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(dst []readyFd, n int, timeout Timeout) ([]readyFd, error) {
	if len(p.buf) < n {
		p.buf = make([]unix.EpollEvent, n)
	}
	count, err := unix.EpollWait(p.epfd, p.buf[:n], timeout.Milliseconds())
	if err != nil {
		return dst, err
	}
	for i := 0; i < count; i++ {
		dst = append(dst, readyFd{
			fd:     int(p.buf[i].Fd),
			events: epollToEvents(p.buf[i].Events),
		})
	}
	return dst, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

// eventsToEpoll converts IOEvents to epoll event flags. EPOLLERR and EPOLLHUP
// are always reported, so they are never requested.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventReadable != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventPriority != 0 {
		epollEvents |= unix.EPOLLPRI
	}
	if events&EventWritable != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventReadable
	}
	if epollEvents&unix.EPOLLPRI != 0 {
		events |= EventPriority
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWritable
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
