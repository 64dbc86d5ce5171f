package lock

import (
	"io"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	internal "github.com/kolkov/locksmith/internal/lock/api"
	"github.com/kolkov/locksmith/internal/lock/detector"
)

// Error codes delivered to the reporting sink.
const (
	// ErrorOutOfMemory: allocation or identifier-space failure.
	ErrorOutOfMemory = detector.CodeOutOfMemory

	// ErrorCreateWhileInUse: double-initialization of a tracked mutex.
	ErrorCreateWhileInUse = detector.CodeCreateWhileInUse

	// ErrorLockOrderViolation: a detected acquisition-order contradiction.
	ErrorLockOrderViolation = detector.CodeLockOrderViolation

	// ErrorReleaseNotHeld: unlock of a mutex the goroutine does not hold.
	ErrorReleaseNotHeld = detector.CodeReleaseNotHeld

	// ErrorDestroyWhileHeld: destroy of a mutex some goroutine holds.
	ErrorDestroyWhileHeld = detector.CodeDestroyWhileHeld
)

// Sentinel errors returned by wrapper operations.
var (
	ErrCreateWhileInUse = internal.ErrCreateWhileInUse
	ErrDestroyWhileHeld = internal.ErrDestroyWhileHeld
	ErrOutOfIDs         = internal.ErrOutOfIDs
)

// Init resets the verifier and enables detection. Call it at program
// startup before tracked mutexes are used:
//
//	func main() {
//		lock.Init()
//		defer lock.Fini()
//		// ...
//	}
//
// Init is idempotent. Setting LOCKSMITH_DISABLED in the environment starts
// the process with detection off regardless.
func Init() {
	internal.Init()
}

// Fini disables detection and prints a summary of detected violations to
// stderr. Safe to call more than once.
func Fini() {
	internal.Fini()
}

// Enable turns detection on.
func Enable() {
	internal.Enable()
}

// Disable turns detection off. All wrapper operations become plain
// delegations to sync.Mutex until Enable is called; this can be used to
// exempt known-safe sections.
func Disable() {
	internal.Disable()
}

// SetErrorSink replaces the process-wide reporting sink, effective
// immediately for subsequent reports. The callback receives an Error*
// code and a human-readable message, and is invoked with no verifier
// locks held, so it may itself operate on tracked mutexes. A nil callback
// restores the default stderr sink. Last writer wins.
func SetErrorSink(fn func(code int, msg string)) {
	internal.SetErrorSink(fn)
}

// MutexInit attaches lock-order tracking to mu under the given diagnostic
// name. Exactly one record may ever be attached to a mutex at a time;
// initializing an already-tracked mutex fails with ErrCreateWhileInUse.
func MutexInit(name string, mu *sync.Mutex) error {
	return internal.MutexInit(name, mu)
}

// MutexDestroy detaches tracking from mu and recycles its identifier.
// It fails with ErrDestroyWhileHeld while any goroutine holds mu.
// Destroying an untracked mutex is a no-op.
func MutexDestroy(mu *sync.Mutex) error {
	return internal.MutexDestroy(mu)
}

// MutexLock locks mu, blocking like sync.Mutex.Lock, and records the
// acquisition in the ordering graph once it succeeds.
func MutexLock(mu *sync.Mutex) {
	internal.MutexLock(mu)
}

// MutexTryLock attempts to lock mu without blocking and reports whether it
// succeeded. A failed attempt records nothing.
func MutexTryLock(mu *sync.Mutex) bool {
	return internal.MutexTryLock(mu)
}

// MutexTimedLock attempts to lock mu within timeout and reports whether it
// succeeded. An expired attempt records nothing, exactly like a failed
// MutexTryLock.
func MutexTimedLock(mu *sync.Mutex, timeout time.Duration) bool {
	return internal.MutexTimedLock(mu, timeout)
}

// MutexUnlock records the release, then unlocks mu. Unlocking a tracked
// mutex the calling goroutine does not hold is reported through the sink
// as ErrorReleaseNotHeld.
func MutexUnlock(mu *sync.Mutex) {
	internal.MutexUnlock(mu)
}

// ViolationsDetected returns the number of lock-order violations reported
// since Init.
func ViolationsDetected() uint64 {
	return internal.ViolationsDetected()
}

// Acquisitions returns mu's successful-acquisition count and whether mu is
// tracked. Diagnostic only.
func Acquisitions(mu *sync.Mutex) (uint64, bool) {
	return internal.Acquisitions(mu)
}

// WriteMetrics writes the verifier's metrics (tracked locks created,
// acquisitions, violations) to w in Prometheus text exposition format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
