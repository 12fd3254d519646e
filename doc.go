// Package allocprofiler is an in-process memory allocation profiler core.
//
// It observes object birth (NEW) and death (FREE) notifications emitted by a
// managed runtime from callback contexts where almost nothing is safe to do
// — no allocation, no re-entrant instrumentation, possibly mid-collection —
// and turns them into ordered, at-most-once-per-event deliveries to one or
// more independent [Capture] instances running in an ordinary goroutine
// context.
//
// # Architecture
//
// A [Broker] receives NEW/FREE notifications on the hot path via Enqueue,
// writing them into one or more per-mutator shards, each holding a
// double-buffered [DeferredQueue]. Enqueue never allocates once a shard's
// queue is at its configured capacity, and never runs user code. When the
// runtime later grants a safe context — or when a [Capture] is stopped and
// needs to observe everything enqueued before it — [Broker.Flush] swaps
// every shard's buffer and dispatches each event, in enqueue order, to every
// registered [Capture] that subscribes to the event's class.
//
// Each [Capture] maintains its own live-object table (identity → class +
// user state), per-class [Allocations] counters, and, optionally, a
// [CallTree] recording the allocation call stack for every tracked NEW. User
// callbacks fire only during a drain, never on the hot path, and are
// re-entrancy-guarded: a callback that itself allocates will have its NEW
// counted, but will not recursively invoke the same capture's callback.
//
// This package does not bind to any particular managed runtime. The
// [EventSource] and [StackCapturer] interfaces are the entire surface a host
// integration must implement; see internal/fakeruntime for an in-memory
// stand-in used by this package's own tests.
package allocprofiler
