package lock

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// quietSink collects reports without writing to stderr.
type quietSink struct {
	mu    sync.Mutex
	codes []int
}

func (s *quietSink) report(code int, _ string) {
	s.mu.Lock()
	s.codes = append(s.codes, code)
	s.mu.Unlock()
}

func (s *quietSink) count(code int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if c == code {
			n++
		}
	}
	return n
}

func newQuietSink(t *testing.T) *quietSink {
	t.Helper()
	Init()
	s := &quietSink{}
	SetErrorSink(s.report)
	t.Cleanup(func() { SetErrorSink(nil) })
	return s
}

func TestMutexType(t *testing.T) {
	sink := newQuietSink(t)

	a, err := NewMutex("a")
	require.NoError(t, err)
	b, err := NewMutex("b")
	require.NoError(t, err)

	a.Lock()
	b.Lock()
	b.Unlock()
	a.Unlock()

	require.True(t, a.TryLock())
	a.Unlock()
	require.True(t, b.TimedLock(time.Millisecond))
	b.Unlock()

	require.EqualValues(t, 2, a.Acquisitions())
	require.EqualValues(t, 2, b.Acquisitions())
	require.NoError(t, a.Destroy())
	require.NoError(t, b.Destroy())
	require.Empty(t, sink.codes)
}

func TestMutexTypeViolation(t *testing.T) {
	sink := newQuietSink(t)

	a, err := NewMutex("front")
	require.NoError(t, err)
	b, err := NewMutex("back")
	require.NoError(t, err)

	a.Lock()
	b.Lock()
	b.Unlock()
	a.Unlock()

	b.Lock()
	a.Lock()
	a.Unlock()
	b.Unlock()

	require.Equal(t, 1, sink.count(ErrorLockOrderViolation))
	require.EqualValues(t, 1, ViolationsDetected())
}

func TestWriteMetrics(t *testing.T) {
	newQuietSink(t)

	m, err := NewMutex("metered")
	require.NoError(t, err)
	m.Lock()
	m.Unlock()

	var buf strings.Builder
	WriteMetrics(&buf)
	out := buf.String()

	require.Contains(t, out, "locksmith_tracked_locks_created_total")
	require.Contains(t, out, "locksmith_acquisitions_total")
	require.Contains(t, out, "locksmith_order_violations_total")
}

func TestSinkReplacementLastWriterWins(t *testing.T) {
	Init()
	t.Cleanup(func() { SetErrorSink(nil) })

	var first, second []int
	SetErrorSink(func(code int, _ string) { first = append(first, code) })
	SetErrorSink(func(code int, _ string) { second = append(second, code) })

	var mu sync.Mutex
	require.NoError(t, MutexInit("once", &mu))
	require.ErrorIs(t, MutexInit("twice", &mu), ErrCreateWhileInUse)

	require.Empty(t, first, "replaced sink must receive nothing")
	require.Equal(t, []int{ErrorCreateWhileInUse}, second)
}
