package detector

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/kolkov/locksmith/internal/lock/registry"
)

// maxStackDepth is the maximum number of stack frames captured for a
// violation report.
const maxStackDepth = 32

// ViolationReport describes one detected lock-order inversion: the lock
// being acquired, the held lock the acquisition contradicts, and the call
// stack of the offending acquisition.
type ViolationReport struct {
	// AcquiringID and AcquiringName identify the lock whose acquisition
	// triggered detection.
	AcquiringID   int
	AcquiringName string

	// HeldID and HeldName identify the already-held lock reachable from
	// the acquiring lock in the ordering graph.
	HeldID   int
	HeldName string

	// Stack holds program counters for the acquiring call site.
	Stack []uintptr
}

// newViolationReport builds a report for acquiring acq while held is in
// the hold-context. skip is the number of frames between the caller and
// the wrapper operation whose stack should appear first.
func newViolationReport(acq, held *registry.Record, skip int) *ViolationReport {
	return &ViolationReport{
		AcquiringID:   acq.ID(),
		AcquiringName: acq.Name(),
		HeldID:        held.ID(),
		HeldName:      held.Name(),
		Stack:         captureStackTrace(skip),
	}
}

// captureStackTrace captures up to maxStackDepth program counters,
// skipping the given number of leading frames.
func captureStackTrace(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// formatStackTrace renders program counters as indented function/file:line
// pairs, filtering runtime frames and this package's own frames.
func formatStackTrace(pcs []uintptr) string {
	if len(pcs) == 0 {
		return "  (no stack trace available)\n"
	}

	frames := runtime.CallersFrames(pcs)
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if strings.HasPrefix(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "/internal/lock/detector.") {
			if !more {
				break
			}
			continue
		}

		buf.WriteString("  ")
		buf.WriteString(frame.Function)
		buf.WriteString("()\n")
		buf.WriteString("      ")
		buf.WriteString(frame.File)
		fmt.Fprintf(&buf, ":%d\n", frame.Line)

		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  (all frames filtered)\n"
	}
	return buf.String()
}

// Format writes the human-readable report. The first line carries the
// identifying information for both locks; the rest is the acquiring call
// stack.
func (r *ViolationReport) Format(w io.Writer) {
	fmt.Fprintf(w, "lock order violation: acquiring %q (id %d) while holding %q (id %d); "+
		"%q has previously been acquired before %q\n",
		r.AcquiringName, r.AcquiringID, r.HeldName, r.HeldID,
		r.AcquiringName, r.HeldName)
	fmt.Fprint(w, formatStackTrace(r.Stack))
}

// String renders the report for sink delivery.
func (r *ViolationReport) String() string {
	var buf strings.Builder
	r.Format(&buf)
	return buf.String()
}
