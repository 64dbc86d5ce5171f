package detector

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/kolkov/locksmith/internal/lock/bitset"
	"github.com/kolkov/locksmith/internal/lock/goroutine"
	"github.com/kolkov/locksmith/internal/lock/registry"
)

var (
	acquisitionsTotal   = metrics.NewCounter("locksmith_acquisitions_total")
	violationsTotal     = metrics.NewCounter("locksmith_order_violations_total")
	releaseNotHeldTotal = metrics.NewCounter("locksmith_release_not_held_total")
)

// Detector runs the ordering checks on every tracked acquisition and
// release. It is safe for concurrent use: all shared state lives in the
// registry's records (per-record guards) and the hold-contexts it is
// handed are goroutine-local.
type Detector struct {
	reg        *registry.Registry
	violations atomic.Uint64
}

// New returns a detector operating on reg.
func New(reg *registry.Registry) *Detector {
	return &Detector{reg: reg}
}

// OnAcquire runs the acquisition bookkeeping for rec after the native
// primitive has been acquired by the goroutine owning hc, and before the
// wrapper returns to the caller.
//
// For each lock h already held, in acquisition order:
//   - if h is transitively reachable from rec in the ordering graph,
//     acquiring rec while holding h asserts an order the graph already
//     contradicts: report a violation and record nothing for this pair;
//   - otherwise record the edge h -> rec.
//
// Re-entrant acquisition of a lock already in hc only bumps the
// acquisition count: no duplicate entry, no self-edges.
//
// Violation reports go to the sink with no internal locks held and never
// affect the acquisition's outcome.
func (d *Detector) OnAcquire(rec *registry.Record, hc *goroutine.HoldContext) {
	acquisitionsTotal.Inc()
	rec.RecordAcquisition()

	if hc.Holds(rec.ID()) {
		return
	}

	for _, h := range hc.Held() {
		hrec := d.reg.Lookup(h)
		if hrec == nil {
			// Held lock destroyed out from under us; destroy-while-held is
			// refused upstream, so this only happens on API misuse.
			continue
		}
		if d.reaches(rec.ID(), h) {
			d.violations.Add(1)
			violationsTotal.Inc()
			// Skip newViolationReport, OnAcquire and the wrapper frame so
			// the stack starts at the caller's acquisition site.
			r := newViolationReport(rec, hrec, 4)
			Report(CodeLockOrderViolation, r.String())
			continue
		}
		hrec.AddBefore(rec.ID())
	}

	hc.Push(rec.ID())
	rec.AddHolder()
}

// OnRelease runs the release bookkeeping for rec before the native
// primitive is released. Releasing a lock absent from the goroutine's
// hold-context is a usage error, reported through the sink and otherwise
// ignored.
func (d *Detector) OnRelease(rec *registry.Record, hc *goroutine.HoldContext) {
	if !hc.Remove(rec.ID()) {
		releaseNotHeldTotal.Inc()
		Report(CodeReleaseNotHeld, fmt.Sprintf(
			"unlock of %q (id %d): lock is not held by this goroutine",
			rec.Name(), rec.ID()))
		return
	}
	rec.DropHolder()
}

// reaches reports whether target is reachable from from over recorded
// before-edges. Reachability is computed lazily by breadth-first traversal
// (no precomputed transitive closure, keeping before-set growth cheap);
// the visited set bounds the walk on pre-existing cycles.
func (d *Detector) reaches(from, target int) bool {
	visited := bitset.New(d.reg.Capacity())
	visited.Set(from)
	queue := []int{from}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		rec := d.reg.Lookup(id)
		if rec == nil {
			continue
		}
		found := false
		rec.EachBefore(func(j int) bool {
			if j == target {
				found = true
				return false
			}
			if !visited.Test(j) {
				visited.Set(j)
				queue = append(queue, j)
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// ViolationsDetected returns the number of order violations reported since
// creation or the last Reset.
func (d *Detector) ViolationsDetected() uint64 {
	return d.violations.Load()
}

// Reset clears the violation counter. Test use only.
func (d *Detector) Reset() {
	d.violations.Store(0)
}
