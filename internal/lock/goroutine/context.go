package goroutine

// HoldContext tracks the locks one goroutine currently holds, in
// acquisition order.
//
// Invariant: a given lock id appears at most once. Re-entrant acquisition
// of a lock the goroutine already holds does not duplicate the entry.
//
// The context is created lazily on the goroutine's first tracked
// acquisition and discarded when the goroutine terminates; it owns no
// cross-goroutine state and needs no locking.
type HoldContext struct {
	// GID is the owning goroutine's id, kept for diagnostics and for
	// dead-goroutine cleanup verification.
	GID int64

	held []int
}

// Alloc creates an empty hold-context for the goroutine gid.
func Alloc(gid int64) *HoldContext {
	return &HoldContext{GID: gid}
}

// Push appends id to the held sequence. Pushing an id already present is
// a no-op, preserving the at-most-once invariant.
func (hc *HoldContext) Push(id int) {
	if hc.Holds(id) {
		return
	}
	hc.held = append(hc.held, id)
}

// Remove deletes id from the held sequence and reports whether it was
// present. Locks need not be released in LIFO order, so removal may happen
// anywhere in the sequence; the relative order of the remaining entries is
// preserved.
func (hc *HoldContext) Remove(id int) bool {
	for i, h := range hc.held {
		if h == id {
			hc.held = append(hc.held[:i], hc.held[i+1:]...)
			return true
		}
	}
	return false
}

// Holds reports whether id is currently in the context.
func (hc *HoldContext) Holds(id int) bool {
	for _, h := range hc.held {
		if h == id {
			return true
		}
	}
	return false
}

// Held returns the held lock ids in acquisition order. The slice is the
// context's own storage: callers must not retain it across mutations.
func (hc *HoldContext) Held() []int {
	return hc.held
}

// Depth returns the number of locks currently held.
func (hc *HoldContext) Depth() int {
	return len(hc.held)
}
