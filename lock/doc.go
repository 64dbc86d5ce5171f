// Package lock provides a runtime lock-order verifier for sync.Mutex.
//
// The verifier wraps mutex operations and, as a side effect of normal
// locking, builds a directed graph of observed "acquired-before"
// relationships between locks. Before an acquisition that would contradict
// previously observed order, the inconsistency is detected and reported —
// catching potential deadlocks (lock-order inversions) long before two
// goroutines actually deadlock.
//
// # Quick Start
//
// Wrap mutexes with the convenience type:
//
//	mu, _ := lock.NewMutex("cache.mu")
//	mu.Lock()
//	defer mu.Unlock()
//
// Or attach tracking to mutexes you already own:
//
//	var mu sync.Mutex
//	lock.MutexInit("db.mu", &mu)
//	lock.MutexLock(&mu)
//	defer lock.MutexUnlock(&mu)
//
// Operations on mutexes that were never initialized pass straight through
// to sync.Mutex: tracking is opportunistic, not mandatory for every lock
// in the process.
//
// # Detection, Not Prevention
//
// A reported violation never blocks or fails the acquisition that
// triggered it. Reports are delivered out-of-band through a process-wide
// sink (see [SetErrorSink]); the default sink writes structured log lines
// to stderr. "Did the lock succeed" and "was this a bad idea" are
// deliberately decoupled.
//
// # Limitations
//
// Detection is dynamic: only orders actually observed at runtime are
// checked. Identifiers of destroyed locks are reused, and ordering history
// does not survive reuse — a destroyed-and-recreated lock starts with a
// clean slate.
package lock
