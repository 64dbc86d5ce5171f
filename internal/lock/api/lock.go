// Package api implements the runtime entry points of the lock-order
// verifier: the side table attaching tracking metadata to caller-owned
// sync.Mutex handles, the per-goroutine hold-context cache, and the
// wrapper operations that compose the registry and detector around the
// native primitive.
//
// Tracking is opportunistic: operations on handles with no attached
// metadata pass straight through to the native primitive. The verifier
// only ever decides whether to warn, never whether to grant the lock.
package api

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kolkov/locksmith/internal/lock/detector"
	"github.com/kolkov/locksmith/internal/lock/goroutine"
	"github.com/kolkov/locksmith/internal/lock/registry"
)

// Sentinel errors surfaced synchronously by the wrapper operations.
var (
	// ErrCreateWhileInUse reports double-initialization of an
	// already-tracked handle.
	ErrCreateWhileInUse = errors.New("locksmith: mutex is already initialized")

	// ErrDestroyWhileHeld reports destruction of a lock some goroutine
	// still holds.
	ErrDestroyWhileHeld = errors.New("locksmith: mutex is still held")

	// ErrOutOfIDs reports identifier-space exhaustion in the registry.
	ErrOutOfIDs = registry.ErrOutOfIDs
)

// Global verifier state.
//
// The registry and detector are created once in init() and replaced only
// by Init/Reset, which callers must serialize against all other use.
var (
	// enabled gates all bookkeeping. When false, every operation is a
	// plain delegation to the native primitive.
	enabled atomic.Bool

	// reg is the process-wide lock identity table.
	reg *registry.Registry

	// det runs ordering checks against reg.
	det *detector.Detector

	// tracked maps a mutex handle to its attached record. LoadOrStore is
	// the atomic set-if-absent establishing the "exactly one record per
	// handle" contract.
	tracked *xsync.MapOf[*sync.Mutex, *registry.Record]

	// contexts caches hold-contexts by goroutine id. Entries are created
	// lazily on a goroutine's first tracked acquisition and reclaimed by
	// the dead-goroutine sweep.
	contexts *xsync.MapOf[int64, *goroutine.HoldContext]

	// allocCounter counts context allocations to trigger periodic cleanup.
	allocCounter atomic.Uint32
)

func init() {
	reg = registry.New()
	det = detector.New(reg)
	tracked = xsync.NewMapOf[*sync.Mutex, *registry.Record]()
	contexts = xsync.NewMapOf[int64, *goroutine.HoldContext]()
	enabled.Store(os.Getenv("LOCKSMITH_DISABLED") == "")
}

// Init resets the verifier to a clean state and enables detection.
// Idempotent. Not safe to call concurrently with other operations.
func Init() {
	Reset()
	enabled.Store(true)
}

// Fini disables detection and prints a summary to stderr. Safe to call
// more than once.
func Fini() {
	enabled.Store(false)

	n := det.ViolationsDetected()
	fmt.Fprintf(os.Stderr, "\n==================\n")
	fmt.Fprintf(os.Stderr, "Locksmith Report\n")
	fmt.Fprintf(os.Stderr, "==================\n")
	if n == 0 {
		fmt.Fprintf(os.Stderr, "No lock order violations detected.\n")
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: %d lock order violation(s) detected!\n", n)
	}
	fmt.Fprintf(os.Stderr, "==================\n\n")
}

// Enable turns detection on.
func Enable() { enabled.Store(true) }

// Disable turns detection off. Wrapper operations become plain
// delegations until Enable is called.
func Disable() { enabled.Store(false) }

// Enabled reports whether detection is active.
func Enabled() bool { return enabled.Load() }

// Reset discards all tracked locks, hold-contexts and counters.
// Test use only; the caller must ensure no concurrent access.
func Reset() {
	reg.Reset()
	det.Reset()
	tracked.Clear()
	contexts.Clear()
	allocCounter.Store(0)
}

// SetErrorSink installs fn as the process-wide reporting sink. A nil fn
// restores the default stderr sink.
func SetErrorSink(fn func(code int, msg string)) {
	detector.SetSink(fn)
}

// MutexInit attaches a tracking record named name to mu. It fails with
// ErrCreateWhileInUse if mu already carries a record and with ErrOutOfIDs
// on allocator exhaustion; on every failure path the partially allocated
// identifier is released before returning.
func MutexInit(name string, mu *sync.Mutex) error {
	rec, err := reg.Allocate(name)
	if err != nil {
		detector.Report(detector.CodeOutOfMemory, fmt.Sprintf(
			"MutexInit(%s): out of lock ids", name))
		return err
	}
	if _, loaded := tracked.LoadOrStore(mu, rec); loaded {
		reg.Release(rec.ID())
		detector.Report(detector.CodeCreateWhileInUse, fmt.Sprintf(
			"MutexInit(%s): this mutex has already been initialized", name))
		return ErrCreateWhileInUse
	}
	return nil
}

// MutexDestroy detaches and frees mu's tracking record, returning its
// identifier to the allocator for reuse. Destroying a lock some goroutine
// still holds, or whose acquisition bookkeeping is still in flight, fails
// with ErrDestroyWhileHeld and is reported; destroying an untracked mutex
// is a no-op.
func MutexDestroy(mu *sync.Mutex) error {
	rec, ok := tracked.Load(mu)
	if !ok {
		return nil
	}
	if rec.Holders() > 0 || rec.InFlight() > 0 {
		return destroyRefused(rec)
	}
	tracked.Delete(mu)
	// Re-check after detaching. An acquisition that resolved the handle
	// before the delete marks itself in flight and then re-loads: either
	// its mark is visible here (undo the detach and refuse), or its
	// re-load observes the detach and backs out. Both sides cannot miss
	// each other, so the id is never released under live bookkeeping.
	if rec.InFlight() > 0 || rec.Holders() > 0 {
		tracked.Store(mu, rec)
		return destroyRefused(rec)
	}
	reg.Release(rec.ID())
	return nil
}

func destroyRefused(rec *registry.Record) error {
	detector.Report(detector.CodeDestroyWhileHeld, fmt.Sprintf(
		"MutexDestroy(%s): mutex is held by %d goroutine(s) with %d acquisition(s) in flight",
		rec.Name(), rec.Holders(), rec.InFlight()))
	return ErrDestroyWhileHeld
}

// MutexLock acquires mu, blocking as the native primitive does, then runs
// the acquisition bookkeeping. Bookkeeping happens strictly after the
// native acquisition succeeds and strictly before return, so the calling
// goroutine's hold-context always reflects reality.
func MutexLock(mu *sync.Mutex) {
	mu.Lock()
	afterAcquire(mu)
}

// MutexTryLock attempts to acquire mu without blocking. A failed attempt
// mutates neither the hold-context nor the ordering graph.
func MutexTryLock(mu *sync.Mutex) bool {
	if !mu.TryLock() {
		return false
	}
	afterAcquire(mu)
	return true
}

// MutexTimedLock attempts to acquire mu within timeout and reports whether
// it succeeded. sync.Mutex has no native timed wait, so the attempt polls
// TryLock with capped exponential backoff until the deadline. An expired
// attempt is treated exactly like a failed TryLock: no state is mutated.
func MutexTimedLock(mu *sync.Mutex, timeout time.Duration) bool {
	if mu.TryLock() {
		afterAcquire(mu)
		return true
	}

	deadline := time.Now().Add(timeout)
	backoff := time.Microsecond
	const maxBackoff = 100 * time.Microsecond
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if backoff > remaining {
			backoff = remaining
		}
		time.Sleep(backoff)
		if mu.TryLock() {
			afterAcquire(mu)
			return true
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// MutexUnlock runs the release bookkeeping for mu, then releases the
// native primitive.
func MutexUnlock(mu *sync.Mutex) {
	if enabled.Load() {
		if rec, ok := tracked.Load(mu); ok {
			det.OnRelease(rec, currentContext())
		}
	}
	mu.Unlock()
}

// afterAcquire runs the detector's acquire logic for a successful native
// acquisition of mu, if mu is tracked and detection is enabled.
//
// The in-flight mark plus the re-load pairs with MutexDestroy's
// detach-then-recheck: either the mark lands before destroy's gate and the
// destroy is refused, or destroy detached the record first and the re-load
// sees that and resolves the handle again. A record is never mutated after
// its id has been released.
func afterAcquire(mu *sync.Mutex) {
	if !enabled.Load() {
		return
	}
	for {
		rec, ok := tracked.Load(mu)
		if !ok {
			return
		}
		rec.BeginAcquire()
		if cur, ok := tracked.Load(mu); ok && cur == rec {
			det.OnAcquire(rec, currentContext())
			rec.EndAcquire()
			return
		}
		// Lost a race with a concurrent destroy. Resolve the handle again:
		// the mapping is now gone, restored, or attached to a new record.
		rec.EndAcquire()
	}
}

// ViolationsDetected returns the number of order violations reported since
// the last Init/Reset.
func ViolationsDetected() uint64 {
	return det.ViolationsDetected()
}

// Acquisitions returns mu's acquisition count and whether mu is tracked.
func Acquisitions(mu *sync.Mutex) (uint64, bool) {
	rec, ok := tracked.Load(mu)
	if !ok {
		return 0, false
	}
	return rec.Acquisitions(), true
}

// TrackedID returns mu's lock identifier and whether mu is tracked.
func TrackedID(mu *sync.Mutex) (int, bool) {
	rec, ok := tracked.Load(mu)
	if !ok {
		return 0, false
	}
	return rec.ID(), true
}

// currentContext returns the hold-context for the calling goroutine,
// creating and caching it on first use. A context is only ever touched by
// its owning goroutine, so the cache needs no per-entry locking.
func currentContext() *goroutine.HoldContext {
	gid := getGoroutineID()
	if hc, ok := contexts.Load(gid); ok {
		return hc
	}
	hc := goroutine.Alloc(gid)
	contexts.Store(gid, hc)
	maybeCleanup()
	return hc
}

// cleanupInterval is the number of context allocations between
// dead-goroutine sweeps, amortizing the runtime.Stack(all=true) cost.
const cleanupInterval = 1024

// maybeCleanup triggers a background sweep of dead goroutines every
// cleanupInterval context allocations.
func maybeCleanup() {
	if allocCounter.Add(1)%cleanupInterval == 0 {
		go cleanupDeadGoroutines()
	}
}

// cleanupDeadGoroutines discards cached hold-contexts whose goroutines
// have terminated. Idempotent; concurrent sweeps just scan the same
// entries.
func cleanupDeadGoroutines() {
	live := make(map[int64]bool)
	for _, gid := range getLiveGoroutineIDs() {
		live[gid] = true
	}
	contexts.Range(func(gid int64, _ *goroutine.HoldContext) bool {
		if !live[gid] {
			contexts.Delete(gid)
		}
		return true
	})
}
