//go:build unix

package pollpipe

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireFdFlags(t *testing.T, fd int) {
	t.Helper()
	fdFlags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, fdFlags&unix.FD_CLOEXEC, "close-on-exec not set")
	flFlags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flFlags&unix.O_NONBLOCK, "non-blocking not set")
}

func TestNewPipe(t *testing.T) {
	r, w := newTestPipe(t)
	require.GreaterOrEqual(t, r.Fd(), 0)
	require.GreaterOrEqual(t, w.Fd(), 0)
	assert.NotEqual(t, r.Fd(), w.Fd())
	requireFdFlags(t, r.Fd())
	requireFdFlags(t, w.Fd())
}

func TestPipe_ReadWrite(t *testing.T) {
	r, w := newTestPipe(t)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = w.Write(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	buf := make([]byte, 3)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(buf[:n]))

	n, err = r.Read(buf[:0])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(buf[:n]))

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestPipe_EndOfStream(t *testing.T) {
	r, w := newTestPipe(t)
	_, err := w.Write([]byte("last"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "last", string(b))

	n, err := r.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestPipe_WriteBrokenPipe(t *testing.T) {
	r, w := newTestPipe(t)
	require.NoError(t, r.Close())
	_, err := w.Write([]byte("x"))
	assert.ErrorIs(t, err, unix.EPIPE)
}

func TestPipe_WritePartial(t *testing.T) {
	r, w := newTestPipe(t)
	const size = 4 << 20
	n, err := w.Write(make([]byte, size))
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Greater(t, n, 0)
	require.Less(t, n, size)

	var total int
	buf := make([]byte, 64<<10)
	for {
		m, err := r.Read(buf)
		if err == ErrWouldBlock {
			break
		}
		require.NoError(t, err)
		total += m
	}
	assert.Equal(t, n, total)
}

func TestPipe_Closed(t *testing.T) {
	r, w := newTestPipe(t)
	require.NoError(t, r.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, -1, r.Fd())
	assert.Equal(t, -1, w.Fd())
	assert.ErrorIs(t, r.Close(), ErrClosed)
	assert.ErrorIs(t, w.Close(), ErrClosed)

	_, err := r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Dup()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.Dup()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.DupTo(100)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.IntoFd()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipe_Dup(t *testing.T) {
	r, w := newTestPipe(t)

	r2, err := r.Dup()
	require.NoError(t, err)
	defer closeIgnoringClosed(t, r2)
	w2, err := w.Dup()
	require.NoError(t, err)
	defer closeIgnoringClosed(t, w2)

	assert.NotEqual(t, r.Fd(), r2.Fd())
	assert.NotEqual(t, w.Fd(), w2.Fd())
	requireFdFlags(t, r2.Fd())
	requireFdFlags(t, w2.Fd())

	require.NoError(t, r.Close())
	require.NoError(t, w.Close())

	_, err = w2.Write([]byte("dup"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := r2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "dup", string(buf[:n]))

	// the duplicate keeps the pipe open until it is closed too
	_, err = r2.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
	require.NoError(t, w2.Close())
	_, err = r2.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipe_DupTo(t *testing.T) {
	r, w := newTestPipe(t)

	// borrow a descriptor number, which DupTo closes and replaces
	spare, _ := newTestPipe(t)
	dst, err := spare.IntoFd()
	require.NoError(t, err)

	r2, err := r.DupTo(dst)
	require.NoError(t, err)
	defer closeIgnoringClosed(t, r2)
	assert.Equal(t, dst, r2.Fd())
	fdFlags, err := unix.FcntlInt(uintptr(dst), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, fdFlags&unix.FD_CLOEXEC)

	_, err = w.Write([]byte("to"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := r2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "to", string(buf[:n]))

	_, err = r.DupTo(r.Fd())
	assert.ErrorIs(t, err, ErrInvalidFd)
	_, err = w.DupTo(-1)
	assert.ErrorIs(t, err, ErrInvalidFd)
}

func TestPipe_FromFd(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))

	r, err := ReaderFromFd(fds[0])
	require.NoError(t, err)
	defer closeIgnoringClosed(t, r)
	w, err := WriterFromFd(fds[1])
	require.NoError(t, err)
	defer closeIgnoringClosed(t, w)

	flFlags, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flFlags&unix.O_NONBLOCK)

	// a blocking descriptor would hang here
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = ReaderFromFd(-1)
	assert.ErrorIs(t, err, ErrInvalidFd)
	_, err = WriterFromFd(-1)
	assert.ErrorIs(t, err, ErrInvalidFd)
}

func TestPipe_IntoFd(t *testing.T) {
	r, w := newTestPipe(t)
	fd, err := w.IntoFd()
	require.NoError(t, err)
	assert.Equal(t, -1, w.Fd())
	assert.ErrorIs(t, w.Close(), ErrClosed)

	// the raw descriptor still works, and is now ours to close
	n, err := unix.Write(fd, []byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, unix.Close(fd))

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))
}
