//go:build unix

package pollpipe

import (
	"errors"
	"io"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

var testBackendList = []Backend{
	BackendAuto,
	BackendEpoll,
	BackendKqueue,
	BackendPoll,
}

// forEachBackend runs fn as a subtest for every backend supported on this
// platform.
func forEachBackend(t *testing.T, fn func(t *testing.T, backend Backend)) {
	t.Helper()
	for _, backend := range testBackendList {
		t.Run(backend.String(), func(t *testing.T) {
			reg, err := NewRegistry(WithBackend(backend))
			if errors.Is(err, ErrBackendUnavailable) {
				t.Skipf("backend %s unavailable", backend)
			}
			require.NoError(t, err)
			require.NoError(t, reg.Close())
			fn(t, backend)
		})
	}
}

// newTestRegistry creates a Registry closed on test cleanup.
func newTestRegistry(t *testing.T, backend Backend, opts ...RegistryOption) *Registry {
	t.Helper()
	reg, err := NewRegistry(append([]RegistryOption{WithBackend(backend)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := reg.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return reg
}

// newTestPipe creates a pipe whose ends are closed on test cleanup.
func newTestPipe(t *testing.T) (*Reader, *Writer) {
	t.Helper()
	r, w, err := NewPipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		closeIgnoringClosed(t, r)
		closeIgnoringClosed(t, w)
	})
	return r, w
}

func closeIgnoringClosed(t *testing.T, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
		t.Errorf("Close failed: %v", err)
	}
}

// collectEvents drains an iterator into a token-keyed map, failing on
// duplicate tokens.
func collectEvents(t *testing.T, it *EventIter) map[Token]IOEvents {
	t.Helper()
	m := make(map[Token]IOEvents)
	for token, events := range it.All() {
		_, dup := m[token]
		require.False(t, dup, "token %d yielded twice", token)
		m[token] = events
	}
	return m
}

// newTestLogger returns a logger writing JSON lines to w, at every level.
func newTestLogger(w io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}
