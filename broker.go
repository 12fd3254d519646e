package allocprofiler

import (
	"context"
	"fmt"
	"sync"
)

// shard is one mutator's private ingress queue. For a multi-threaded host
// runtime, a per-thread available queue with a single draining thread
// preserves the core's single-drainer contract; shard is that extension,
// and index 0 is always present for the common single-threaded case.
type shard struct {
	mu        sync.Mutex
	available *DeferredQueue
}

// Broker is the event broker: the single point of ingress for NEW/FREE
// notifications from the host runtime's hot path, and the dispatcher that
// drains them to every registered [Capture] under a safe context.
//
// Broker is a process-lifetime object constructed once at initialization and
// passed by reference into every [Capture] — never an ambient package-level
// global.
type Broker struct {
	shards      []*shard
	shardPool   sync.Pool // of *DeferredQueue, recycled across Flush calls
	guard       drainGuard
	listenersMu sync.RWMutex
	listeners   []*Capture
	diag        *Diagnostics

	initialQueueCap int
	maxQueueCap     int
}

// NewBroker constructs a Broker ready to accept Enqueue calls. See
// [WithShards], [WithInitialQueueCapacity], [WithMaxQueueCapacity], and
// [WithDiagnostics] for configuration.
//
// NewBroker's error is the only error this core surfaces upward rather than
// through [Diagnostics]; lifecycle misuse does not panic ([Capture.Start]
// and [Capture.Stop] report it by returning false): a non-zero maxQueueCap
// smaller than initialQueueCap can never be honored — every shard's queue
// would already exceed its configured cap the moment it is constructed,
// before a single event is ever pushed — so construction fails loudly
// instead of silently violating the hot path's never-allocate-past-cap
// contract.
func NewBroker(opts ...BrokerOption) (*Broker, error) {
	cfg := defaultBrokerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.maxQueueCap > 0 && cfg.initialQueueCap > cfg.maxQueueCap {
		return nil, fmt.Errorf("%w: initial queue capacity %d exceeds max queue capacity %d",
			ErrQueueRegistrationFailed, cfg.initialQueueCap, cfg.maxQueueCap)
	}

	b := &Broker{
		diag:            cfg.diagnostics,
		initialQueueCap: cfg.initialQueueCap,
		maxQueueCap:     cfg.maxQueueCap,
	}
	b.shardPool.New = func() any {
		return NewDeferredQueue(b.initialQueueCap, b.maxQueueCap)
	}

	shardCount := cfg.shardCount
	if shardCount < 1 {
		shardCount = 1
	}
	b.shards = make([]*shard, shardCount)
	for i := range b.shards {
		b.shards[i] = &shard{available: NewDeferredQueue(cfg.initialQueueCap, cfg.maxQueueCap)}
	}

	if b.diag == nil {
		b.diag = NewDiagnostics(nil)
	}

	return b, nil
}

// Diagnostics returns the broker's diagnostic surface.
func (b *Broker) Diagnostics() *Diagnostics {
	return b.diag
}

// Enqueue is the hot-path entry point: it is called from the runtime's
// allocation/free hook, for shard 0 (the single-threaded case — see
// [Broker.EnqueueShard] for the multi-threaded extension). It never
// allocates once the shard's queue is at its configured maxCapacity, never
// blocks on another goroutine's progress beyond a brief per-shard mutex, and
// never runs user code.
func (b *Broker) Enqueue(kind Kind, class ClassRef, identity ObjectIdentity) {
	b.EnqueueShard(0, kind, class, identity)
}

// EnqueueShard is [Broker.Enqueue] for a specific mutator shard. shardIndex
// is taken modulo the configured shard count, so callers may use a stable
// per-thread index without needing to know the exact count.
func (b *Broker) EnqueueShard(shardIndex int, kind Kind, class ClassRef, identity ObjectIdentity) {
	s := b.shards[shardIndex%len(b.shards)]
	s.mu.Lock()
	slot, ok := s.available.Push()
	if ok {
		slot.Kind = kind
		slot.Class = class
		slot.Identity = identity
	}
	s.mu.Unlock()

	if !ok {
		b.diag.recordDrop(kind, class)
	}
}

// Flush drains every shard's pending events to every registered [Capture],
// in each shard's enqueue order. If a drain is already in progress (a
// re-entrant call, e.g. from within a user callback, or a nested Flush) it
// is a no-op: the outer drain processes only the snapshot it swapped out,
// and events enqueued meanwhile wait in the fresh available queue for the
// next Flush.
//
// ctx is checked once before the buffer swap begins; if already canceled,
// Flush returns without swapping, leaving every pending event queued for a
// subsequent call. Dispatch itself is not interrupted by ctx once started,
// since user callbacks must not block and aborting mid-drain would silently
// drop an observed NEW without ever delivering its matching FREE.
func (b *Broker) Flush(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	if !b.guard.tryEnter() {
		return
	}
	defer b.guard.exit()

	swapped := make([]*DeferredQueue, len(b.shards))
	for i, s := range b.shards {
		fresh, _ := b.shardPool.Get().(*DeferredQueue)
		fresh.Clear()
		s.mu.Lock()
		swapped[i] = s.available
		s.available = fresh
		s.mu.Unlock()
	}

	listeners := b.snapshotListeners()

	for _, q := range swapped {
		for i := 0; i < q.Len(); i++ {
			slot := q.At(i)
			b.dispatch(listeners, slot)
			slot.reset()
		}
		b.shardPool.Put(q)
	}
}

func (b *Broker) dispatch(listeners []*Capture, e *Event) {
	for _, c := range listeners {
		b.dispatchOne(c, e)
	}
}

// dispatchOne invokes one capture's handler for one event, recovering from
// any panic raised by a user callback so that one failing capture or
// callback never aborts the drain for the rest.
func (b *Broker) dispatchOne(c *Capture, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.diag.reportCallbackError(&CallbackError{
				Class:    e.Class,
				Kind:     e.Kind,
				Identity: e.Identity,
				Cause:    recoveredPanic(r),
			})
		}
	}()

	switch e.Kind {
	case New:
		c.handleNew(e.Class, e.Identity)
	case Free:
		c.handleFree(e.Class, e.Identity)
	}
}

func (b *Broker) register(c *Capture) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, c)
}

func (b *Broker) unregister(c *Capture) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	for i, l := range b.listeners {
		if l == c {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Broker) snapshotListeners() []*Capture {
	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()
	out := make([]*Capture, len(b.listeners))
	copy(out, b.listeners)
	return out
}
