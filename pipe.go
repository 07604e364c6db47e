//go:build unix

package pollpipe

import (
	"errors"
	"io"
	"runtime"

	"golang.org/x/sys/unix"
)

// NewPipe creates a connected pair of non-blocking, close-on-exec pipe ends.
// Bytes written to the Writer may be read from the Reader.
func NewPipe() (*Reader, *Writer, error) {
	var fds [2]int
	if err := pipe2(&fds); err != nil {
		return nil, nil, err
	}
	return newReader(fds[0]), newWriter(fds[1]), nil
}

// noCopy may be embedded in structs which must not be copied after first
// use, see https://golang.org/issues/8005#issuecomment-190753527
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// pipeEnd owns one descriptor, closing it exactly once.
type pipeEnd struct {
	_       noCopy
	fd      int
	reg     *Registry // set while registered
	cleanup runtime.Cleanup
}

// Fd returns the underlying descriptor, or -1 once closed or released.
func (x *pipeEnd) Fd() int {
	return x.fd
}

// Close closes the descriptor. If the end is registered with a Registry that
// is still open, it is unregistered first. The descriptor is closed even if
// unregistering fails, in which case both errors are returned. Subsequent
// calls return ErrClosed.
func (x *pipeEnd) Close() error {
	if x.fd < 0 {
		return ErrClosed
	}
	var err error
	if x.reg != nil && x.reg.registered(x.fd) {
		err = x.reg.unregister(x.fd)
	}
	fd, _ := x.IntoFd()
	return errors.Join(err, unix.Close(fd))
}

// IntoFd releases ownership of the descriptor, returning it. The caller
// becomes responsible for closing it. Any registration is left in place.
func (x *pipeEnd) IntoFd() (int, error) {
	if x.fd < 0 {
		return -1, ErrClosed
	}
	fd := x.fd
	x.cleanup.Stop()
	x.fd = -1
	x.reg = nil
	return fd, nil
}

// bind fails only while another Registry still holds a registration for
// this end's descriptor.
func (x *pipeEnd) bind(r *Registry) bool {
	if x.reg != nil && x.reg != r && x.reg.registered(x.fd) {
		return false
	}
	x.reg = r
	return true
}

func (x *pipeEnd) unbind(r *Registry) {
	if x.reg == r {
		x.reg = nil
	}
}

func (x *pipeEnd) dup() (int, error) {
	if x.fd < 0 {
		return -1, ErrClosed
	}
	return unix.FcntlInt(uintptr(x.fd), unix.F_DUPFD_CLOEXEC, 0)
}

func (x *pipeEnd) dupTo(dst int) error {
	if x.fd < 0 {
		return ErrClosed
	}
	if dst < 0 || dst == x.fd {
		return ErrInvalidFd
	}
	return dup3(x.fd, dst)
}

// Reader is the read end of a pipe. It must not be copied.
type Reader struct {
	pipeEnd
}

var (
	// compile time assertions

	_ io.ReadCloser = (*Reader)(nil)
	_ Pollable      = (*Reader)(nil)
	_ binder        = (*Reader)(nil)
)

func newReader(fd int) *Reader {
	r := &Reader{pipeEnd{fd: fd}}
	r.cleanup = runtime.AddCleanup(r, closeFd, fd)
	return r
}

// ReaderFromFd takes ownership of fd, which must be the read end of a pipe,
// and switches it to non-blocking mode.
func ReaderFromFd(fd int) (*Reader, error) {
	if err := adoptFd(fd); err != nil {
		return nil, err
	}
	return newReader(fd), nil
}

// Read reads up to len(p) bytes. It returns io.EOF once the write end is
// closed and the pipe is drained, and ErrWouldBlock if no data is available
// yet.
func (x *Reader) Read(p []byte) (int, error) {
	if x.fd < 0 {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(x.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Dup duplicates the descriptor, with close-on-exec set, as a new Reader.
func (x *Reader) Dup() (*Reader, error) {
	fd, err := x.dup()
	if err != nil {
		return nil, err
	}
	return newReader(fd), nil
}

// DupTo duplicates the descriptor onto dst, closing whatever dst referred to,
// and returns it as a new Reader with close-on-exec set.
func (x *Reader) DupTo(dst int) (*Reader, error) {
	if err := x.dupTo(dst); err != nil {
		return nil, err
	}
	return newReader(dst), nil
}

// Writer is the write end of a pipe. It must not be copied.
type Writer struct {
	pipeEnd
}

var (
	// compile time assertions

	_ io.WriteCloser = (*Writer)(nil)
	_ Pollable       = (*Writer)(nil)
	_ binder         = (*Writer)(nil)
)

func newWriter(fd int) *Writer {
	w := &Writer{pipeEnd{fd: fd}}
	w.cleanup = runtime.AddCleanup(w, closeFd, fd)
	return w
}

// WriterFromFd takes ownership of fd, which must be the write end of a pipe,
// and switches it to non-blocking mode.
func WriterFromFd(fd int) (*Writer, error) {
	if err := adoptFd(fd); err != nil {
		return nil, err
	}
	return newWriter(fd), nil
}

// Write writes all of p, unless the pipe buffer fills, in which case it
// returns the number of bytes written and ErrWouldBlock. Writing to a pipe
// with no reader fails with EPIPE.
func (x *Writer) Write(p []byte) (n int, err error) {
	if x.fd < 0 {
		return 0, ErrClosed
	}
	for n < len(p) {
		m, err := unix.Write(x.fd, p[n:])
		switch err {
		case nil:
			n += m
		case unix.EINTR:
		case unix.EAGAIN:
			return n, ErrWouldBlock
		default:
			return n, err
		}
	}
	return n, nil
}

// Dup duplicates the descriptor, with close-on-exec set, as a new Writer.
func (x *Writer) Dup() (*Writer, error) {
	fd, err := x.dup()
	if err != nil {
		return nil, err
	}
	return newWriter(fd), nil
}

// DupTo duplicates the descriptor onto dst, closing whatever dst referred to,
// and returns it as a new Writer with close-on-exec set.
func (x *Writer) DupTo(dst int) (*Writer, error) {
	if err := x.dupTo(dst); err != nil {
		return nil, err
	}
	return newWriter(dst), nil
}

func adoptFd(fd int) error {
	if fd < 0 {
		return ErrInvalidFd
	}
	return unix.SetNonblock(fd, true)
}

// closeFd runs if a pipe end becomes unreachable without being closed.
func closeFd(fd int) {
	_ = unix.Close(fd)
}
