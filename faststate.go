package allocprofiler

import "sync/atomic"

// drainGuard is a lock-free, cache-line-padded boolean used by [Broker] to
// detect and coalesce re-entrant drain requests: a pure CAS with no
// validation, trusting the caller's discipline.
type drainGuard struct { // betteralign:ignore
	_ [64]byte //nolint:unused // cache line padding, avoids false sharing with neighboring fields
	v atomic.Bool
	_ [63]byte //nolint:unused // pad to a full cache line
}

// tryEnter attempts to transition the guard from not-draining to draining.
// Returns false if a drain is already in progress (the caller should treat
// this as a no-op: events enqueued during the in-progress drain are left
// for the next drain, since that drain only processes its swapped snapshot).
func (g *drainGuard) tryEnter() bool {
	return g.v.CompareAndSwap(false, true)
}

// exit releases the guard, allowing a subsequent drain to proceed.
func (g *drainGuard) exit() {
	g.v.Store(false)
}

// draining reports whether a drain is currently in progress.
func (g *drainGuard) draining() bool {
	return g.v.Load()
}
