//go:build unix

package pollpipe

import (
	"golang.org/x/sys/unix"
)

// pollPoller manages readiness using poll(2), which is available on every
// Unix. It keeps a dense pollfd slice, so each wait is O(registrations).
type pollPoller struct {
	fds   []unix.PollFd
	index map[int]int // fd -> position in fds
}

func newPollPoller(capacity int) *pollPoller {
	return &pollPoller{
		fds:   make([]unix.PollFd, 0, capacity),
		index: make(map[int]int, capacity),
	}
}

func (p *pollPoller) backend() Backend { return BackendPoll }

func (p *pollPoller) add(fd int, interest IOEvents) error {
	// poll(2) only reports a bad fd as POLLNVAL during a wait
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return err
	}
	if _, ok := p.index[fd]; ok {
		return unix.EEXIST
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: interest.ToNative()})
	return nil
}

func (p *pollPoller) modify(fd int, _, interest IOEvents) error {
	i, ok := p.index[fd]
	if !ok {
		return unix.ENOENT
	}
	p.fds[i].Events = interest.ToNative()
	return nil
}

func (p *pollPoller) remove(fd int, _ IOEvents) error {
	i, ok := p.index[fd]
	if !ok {
		return unix.ENOENT
	}
	last := len(p.fds) - 1
	p.fds[i] = p.fds[last]
	p.fds = p.fds[:last]
	if i < len(p.fds) {
		p.index[int(p.fds[i].Fd)] = i
	}
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) wait(dst []readyFd, n int, timeout Timeout) ([]readyFd, error) {
	count, err := unix.Poll(p.fds, timeout.Milliseconds())
	if err != nil {
		return dst, err
	}
	for i := range p.fds {
		if count == 0 || n == 0 {
			break
		}
		revents := p.fds[i].Revents
		if revents == 0 {
			continue
		}
		p.fds[i].Revents = 0
		count--
		n--
		dst = append(dst, readyFd{fd: int(p.fds[i].Fd), events: EventsFromNative(revents)})
	}
	return dst, nil
}

func (p *pollPoller) close() error {
	p.fds = nil
	p.index = nil
	return nil
}
