// Copyright 2025 The locksmith Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateSequentialIDs(t *testing.T) {
	g := New()

	for i := 0; i < 10; i++ {
		rec, err := g.Allocate(fmt.Sprintf("lock-%d", i))
		require.NoError(t, err)
		require.Equal(t, i, rec.ID(), "ids must be dense and ascending")
	}
	require.Equal(t, 10, g.Live())
}

func TestReleaseReusesLowestID(t *testing.T) {
	g := New()

	var recs []*Record
	for i := 0; i < 5; i++ {
		rec, err := g.Allocate("lock")
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	g.Release(recs[1].ID())
	g.Release(recs[3].ID())

	rec, err := g.Allocate("reused")
	require.NoError(t, err)
	require.Equal(t, 1, rec.ID(), "lowest freed id is reused first")

	rec, err = g.Allocate("reused")
	require.NoError(t, err)
	require.Equal(t, 3, rec.ID())
}

func TestReuseStartsWithEmptyBeforeSet(t *testing.T) {
	g := New()

	a, err := g.Allocate("a")
	require.NoError(t, err)
	b, err := g.Allocate("b")
	require.NoError(t, err)

	a.AddBefore(b.ID())
	require.True(t, a.HasBefore(b.ID()))

	// Destroy and recreate under the same id: no stale edges may survive.
	id := a.ID()
	g.Release(id)
	a2, err := g.Allocate("a2")
	require.NoError(t, err)
	require.Equal(t, id, a2.ID())
	require.False(t, a2.HasBefore(b.ID()), "before-set must start empty after id reuse")
	require.Zero(t, a2.BeforeCount())
}

func TestReleaseClearsInboundEdges(t *testing.T) {
	g := New()

	x, err := g.Allocate("x")
	require.NoError(t, err)
	y, err := g.Allocate("y")
	require.NoError(t, err)

	// x -> y recorded, then y destroyed and its id reused by z. The stale
	// x -> y bit must not read as x -> z.
	x.AddBefore(y.ID())
	g.Release(y.ID())
	require.False(t, x.HasBefore(y.ID()), "inbound edge must be cleared on release")

	z, err := g.Allocate("z")
	require.NoError(t, err)
	require.Equal(t, y.ID(), z.ID())
	require.False(t, x.HasBefore(z.ID()), "freed id's next owner inherits no edges")
}

func TestRecordInFlight(t *testing.T) {
	g := New()
	rec, err := g.Allocate("lock")
	require.NoError(t, err)

	require.EqualValues(t, 0, rec.InFlight())
	rec.BeginAcquire()
	rec.BeginAcquire()
	require.EqualValues(t, 2, rec.InFlight())
	rec.EndAcquire()
	rec.EndAcquire()
	require.EqualValues(t, 0, rec.InFlight())
}

func TestGrowthPreservesRecordsAndEdges(t *testing.T) {
	g := New()

	// Push well past the initial table size so the table and bitmap
	// reallocate several times.
	const n = 200
	recs := make([]*Record, n)
	for i := 0; i < n; i++ {
		rec, err := g.Allocate(fmt.Sprintf("lock-%d", i))
		require.NoError(t, err)
		recs[i] = rec
		if i > 0 {
			recs[i-1].AddBefore(rec.ID())
		}
	}

	require.GreaterOrEqual(t, g.Capacity(), n)
	for i := 0; i < n; i++ {
		got := g.Lookup(i)
		require.Same(t, recs[i], got, "record %d lost across growth", i)
		if i > 0 {
			require.True(t, recs[i-1].HasBefore(i), "edge %d->%d lost across growth", i-1, i)
		}
	}
}

func TestAllocateExhaustion(t *testing.T) {
	g := newWithLimit(4)

	for i := 0; i < 4; i++ {
		_, err := g.Allocate("lock")
		require.NoError(t, err)
	}
	_, err := g.Allocate("one-too-many")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfIDs))

	// Freeing an id makes allocation possible again.
	g.Release(2)
	rec, err := g.Allocate("again")
	require.NoError(t, err)
	require.Equal(t, 2, rec.ID())
}

func TestLookupUnusedSlot(t *testing.T) {
	g := New()
	require.Nil(t, g.Lookup(0))
	require.Nil(t, g.Lookup(-1))

	rec, err := g.Allocate("lock")
	require.NoError(t, err)
	require.Same(t, rec, g.Lookup(rec.ID()))

	g.Release(rec.ID())
	require.Nil(t, g.Lookup(rec.ID()))
}

func TestRecordCounters(t *testing.T) {
	g := New()
	rec, err := g.Allocate("lock")
	require.NoError(t, err)

	rec.RecordAcquisition()
	rec.RecordAcquisition()
	require.EqualValues(t, 2, rec.Acquisitions())

	rec.AddHolder()
	require.EqualValues(t, 1, rec.Holders())
	rec.DropHolder()
	require.EqualValues(t, 0, rec.Holders())
}

func TestConcurrentAddBeforeNoLostUpdates(t *testing.T) {
	g := New()
	rec, err := g.Allocate("shared")
	require.NoError(t, err)

	// Many goroutines racing to set disjoint bits on one record: every
	// bit must land (a lost update silently hides a real ordering fact).
	const workers = 8
	const bitsPer = 64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < bitsPer; i++ {
				rec.AddBefore(w*bitsPer + i)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, workers*bitsPer, rec.BeforeCount())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	g := New()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rec, err := g.Allocate("churn")
				if err != nil {
					t.Error(err)
					return
				}
				if g.Lookup(rec.ID()) == nil {
					// Another goroutine may have been assigned this id only
					// after we released it, never before.
					t.Errorf("live record id %d not visible", rec.ID())
					return
				}
				g.Release(rec.ID())
			}
		}()
	}
	wg.Wait()

	require.Zero(t, g.Live(), "all churned records released")
}
