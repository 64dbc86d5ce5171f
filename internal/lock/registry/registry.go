// Copyright 2025 The locksmith Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry implements lock identity management: a dense-id
// allocator backed by a used-bitmap, and the growable table of per-lock
// records those ids index.
//
// Identifiers are deliberately reused after destruction to keep the table
// compact. Release erases the id's ordering history in both directions:
// the freed record is discarded and every live before-set drops its bit
// for the id, so a record recreated under a reused id starts with no
// edges in or out.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/kolkov/locksmith/internal/lock/bitset"
)

const (
	// initialBeforeBits is the before-set capacity of a fresh record.
	// Sets grow lazily the first time an edge to a higher id is recorded.
	initialBeforeBits = 16

	// initialTableSize is the record table's first allocation.
	initialTableSize = 16

	// defaultMaxLocks caps the identifier space. Exhaustion is the one
	// allocation failure this package can surface and recover from.
	defaultMaxLocks = 1 << 20
)

// ErrOutOfIDs is returned by Allocate when the identifier space is
// exhausted. The caller aborts the operation with no partial state.
var ErrOutOfIDs = errors.New("locksmith: lock id space exhausted")

var createdTotal = metrics.NewCounter("locksmith_tracked_locks_created_total")

// Record is the per-lock metadata for one tracked lock.
//
// The acquisition and holder counters are atomic; the before-set is guarded
// by the record's own mutex so concurrent edge recordings for the same lock
// pair never lose a bit. Nothing here blocks: all critical sections are a
// few instructions long.
type Record struct {
	id   int
	name string

	// acquisitions counts successful lock/trylock/timedlock operations.
	// Diagnostic only.
	acquisitions atomic.Uint64

	// holders counts goroutines currently holding the lock. Destroy is
	// refused while holders > 0.
	holders atomic.Int32

	// pending counts acquisitions whose bookkeeping is in flight: the
	// native lock has succeeded but the hold-context and holder count do
	// not reflect it yet. Destroy is refused while pending > 0.
	pending atomic.Int32

	// mu guards before. It is never held while calling out of this package.
	mu sync.Mutex

	// before holds one bit per known lock id. Bit j set means lock j has
	// been observed acquired while this lock was already held: an edge
	// this -> j in the ordering graph ("this is acquired before j").
	before *bitset.BitSet
}

// ID returns the record's dense identifier.
func (r *Record) ID() int { return r.id }

// Name returns the diagnostic label given at init.
func (r *Record) Name() string { return r.name }

// Acquisitions returns the number of successful acquisitions recorded.
func (r *Record) Acquisitions() uint64 { return r.acquisitions.Load() }

// RecordAcquisition bumps the acquisition counter.
func (r *Record) RecordAcquisition() { r.acquisitions.Add(1) }

// Holders returns the number of goroutines currently holding the lock.
func (r *Record) Holders() int32 { return r.holders.Load() }

// AddHolder notes that one more goroutine holds the lock.
func (r *Record) AddHolder() { r.holders.Add(1) }

// DropHolder notes that a holding goroutine released the lock.
func (r *Record) DropHolder() { r.holders.Add(-1) }

// BeginAcquire marks a successful native acquisition whose bookkeeping has
// not run yet.
func (r *Record) BeginAcquire() { r.pending.Add(1) }

// EndAcquire marks the acquisition's bookkeeping complete.
func (r *Record) EndAcquire() { r.pending.Add(-1) }

// InFlight returns the number of acquisitions between BeginAcquire and
// EndAcquire.
func (r *Record) InFlight() int32 { return r.pending.Load() }

// AddBefore records the edge r -> j, growing the before-set if j exceeds
// its current capacity. Growth preserves existing bits.
func (r *Record) AddBefore(j int) {
	r.mu.Lock()
	r.before.Set(j)
	r.mu.Unlock()
}

// ClearBefore removes the edge r -> j if recorded. The registry calls this
// for every live record when id j is freed, so no stale edge can attach to
// j's next owner.
func (r *Record) ClearBefore(j int) {
	r.mu.Lock()
	r.before.Clear(j)
	r.mu.Unlock()
}

// HasBefore reports whether the direct edge r -> j has been recorded.
func (r *Record) HasBefore(j int) bool {
	r.mu.Lock()
	ok := r.before.Test(j)
	r.mu.Unlock()
	return ok
}

// EachBefore calls fn for every direct successor id of r, in ascending
// order, until fn returns false. The record's guard is held for the
// duration; fn must not acquire other record guards.
func (r *Record) EachBefore(fn func(j int) bool) {
	r.mu.Lock()
	r.before.Range(fn)
	r.mu.Unlock()
}

// BeforeCount returns the number of direct successors. Diagnostic only.
func (r *Record) BeforeCount() int {
	r.mu.Lock()
	n := r.before.Count()
	r.mu.Unlock()
	return n
}

// Registry is the lock identity table: a growable slice of records plus a
// used-bitmap of matching cardinality.
//
// Invariants:
//   - used[i] set <=> locks[i] holds a live record
//   - bitmap capacity >= len(locks) at all times; both grow by
//     reallocation under the metadata mutex and never shrink, so ids read
//     concurrently stay valid.
type Registry struct {
	mu    sync.Mutex
	used  *bitset.BitSet
	locks []*Record
	limit int
}

// New returns an empty registry with the default identifier cap.
func New() *Registry {
	return newWithLimit(defaultMaxLocks)
}

func newWithLimit(limit int) *Registry {
	return &Registry{
		used:  bitset.New(0),
		limit: limit,
	}
}

// Allocate assigns the lowest free identifier, creates a record named name
// for it, and returns the record. It fails with ErrOutOfIDs when the
// identifier space is exhausted; nothing is retained on failure.
func (g *Registry) Allocate(name string) (*Record, error) {
	g.mu.Lock()
	id := g.used.NextClear(0)
	if id >= g.limit {
		g.mu.Unlock()
		return nil, ErrOutOfIDs
	}
	if id >= len(g.locks) {
		g.grow(id + 1)
	}
	g.used.Set(id)
	rec := &Record{
		id:     id,
		name:   name,
		before: bitset.New(initialBeforeBits),
	}
	g.locks[id] = rec
	g.mu.Unlock()

	createdTotal.Inc()
	return rec, nil
}

// grow reallocates the record table to at least n slots, doubling from the
// current size, and extends the used-bitmap in lock-step. Caller holds mu.
func (g *Registry) grow(n int) {
	size := len(g.locks)
	if size == 0 {
		size = initialTableSize
	}
	for size < n {
		size *= 2
	}
	table := make([]*Record, size)
	copy(table, g.locks)
	g.locks = table
	g.used.Grow(size)
}

// Release frees the record for id and returns the identifier to the
// allocator for reuse. Inbound edges naming id are cleared from every live
// before-set, so the id's next owner inherits no ordering history. The
// caller must ensure no goroutine still holds the lock and no acquisition
// is in flight.
func (g *Registry) Release(id int) {
	g.mu.Lock()
	if id >= 0 && id < len(g.locks) && g.locks[id] != nil {
		g.locks[id] = nil
		g.used.Clear(id)
		for i, r := range g.locks {
			if r != nil && i != id {
				r.ClearBefore(id)
			}
		}
	}
	g.mu.Unlock()
}

// Lookup returns the live record for id, or nil if the slot is unused.
func (g *Registry) Lookup(id int) *Record {
	g.mu.Lock()
	var rec *Record
	if id >= 0 && id < len(g.locks) {
		rec = g.locks[id]
	}
	g.mu.Unlock()
	return rec
}

// Capacity returns the current table length. It only ever grows.
func (g *Registry) Capacity() int {
	g.mu.Lock()
	n := len(g.locks)
	g.mu.Unlock()
	return n
}

// Live returns the number of live records.
func (g *Registry) Live() int {
	g.mu.Lock()
	n := g.used.Count()
	g.mu.Unlock()
	return n
}

// Reset discards every record and identifier. Test use only; the caller
// must ensure no concurrent access.
func (g *Registry) Reset() {
	g.mu.Lock()
	g.locks = nil
	g.used = bitset.New(0)
	g.mu.Unlock()
}
