package detector

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Error codes passed to the reporting sink. The numbering is part of the
// sink contract: installed callbacks dispatch on these values.
const (
	// CodeOutOfMemory: allocation or identifier-space failure in the
	// registry. Surfaced synchronously to the caller as well.
	CodeOutOfMemory = 1

	// CodeCreateWhileInUse: double-initialization of an already-tracked
	// handle.
	CodeCreateWhileInUse = 2

	// CodeLockOrderViolation: a detected contradiction in acquisition
	// order. Reported out-of-band only; never fails the acquisition.
	CodeLockOrderViolation = 3

	// CodeReleaseNotHeld: unlock of a lock absent from the releasing
	// goroutine's hold-context.
	CodeReleaseNotHeld = 4

	// CodeDestroyWhileHeld: destroy of a lock some goroutine still holds.
	CodeDestroyWhileHeld = 5
)

// Sink receives error reports. Process-wide, replaceable at any time;
// last writer wins. Sinks are invoked with no internal locks held, so a
// callback may itself operate on tracked locks without deadlocking the
// verifier.
type Sink func(code int, msg string)

var sink atomic.Value // of Sink

func init() {
	sink.Store(Sink(StderrSink))
}

// SetSink installs fn as the process-wide reporting sink, effective
// immediately for subsequent reports. A nil fn restores the default
// stderr sink.
func SetSink(fn Sink) {
	if fn == nil {
		fn = StderrSink
	}
	sink.Store(fn)
}

// Report invokes the currently installed sink.
func Report(code int, msg string) {
	sink.Load().(Sink)(code, msg)
}

// stderrLog is the default diagnostic stream. Write errors are ignored:
// the default sink never raises further errors itself.
var stderrLog = zerolog.New(os.Stderr).With().
	Timestamp().
	Str("component", "locksmith").
	Logger()

// StderrSink is the default sink. It writes the code and message as a
// structured log line on stderr.
func StderrSink(code int, msg string) {
	stderrLog.Error().Int("code", code).Msg(msg)
}
