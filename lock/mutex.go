package lock

import (
	"sync"
	"time"
)

// Mutex is a tracked drop-in replacement for sync.Mutex. It satisfies
// sync.Locker; every acquisition and release feeds the lock-order graph.
type Mutex struct {
	mu sync.Mutex
}

var _ sync.Locker = (*Mutex)(nil)

// NewMutex returns a Mutex tracked under the given diagnostic name.
func NewMutex(name string) (*Mutex, error) {
	m := &Mutex{}
	if err := MutexInit(name, &m.mu); err != nil {
		return nil, err
	}
	return m, nil
}

// Lock locks m, blocking like sync.Mutex.Lock.
func (m *Mutex) Lock() {
	MutexLock(&m.mu)
}

// TryLock attempts to lock m without blocking.
func (m *Mutex) TryLock() bool {
	return MutexTryLock(&m.mu)
}

// TimedLock attempts to lock m within timeout.
func (m *Mutex) TimedLock(timeout time.Duration) bool {
	return MutexTimedLock(&m.mu, timeout)
}

// Unlock unlocks m.
func (m *Mutex) Unlock() {
	MutexUnlock(&m.mu)
}

// Destroy detaches tracking and recycles m's identifier. The Mutex must
// not be used afterwards.
func (m *Mutex) Destroy() error {
	return MutexDestroy(&m.mu)
}

// Acquisitions returns m's successful-acquisition count.
func (m *Mutex) Acquisitions() uint64 {
	n, _ := Acquisitions(&m.mu)
	return n
}
