package allocprofiler

import (
	"context"
	"sync"
)

// Callback is the user callback contract: invoked as
// cb(class, event, priorState) during a drain, never on the hot path. Its
// return value becomes the new state stored for the identity on NEW; the
// return value is ignored on FREE. Must not block; may allocate, since the
// capture's re-entrancy guard (not the broker's hot-path discipline)
// protects against unbounded recursion.
type Callback func(class ClassRef, kind Kind, priorState any) (newState any)

// classSubscription is the per-class bookkeeping a [Capture] owns: its
// counters, optional user callback, and optional call tree.
type classSubscription struct {
	allocations Allocations
	callback    Callback
	tree        *CallTree
}

// tableEntry is one live row of the capture table: the object's class, its
// user state, and — if a call tree is bound for its class — the leaf node to
// decrement on FREE.
type tableEntry struct {
	class ClassRef
	state any
	leaf  *Node
}

// Capture is one independent observation session: its own live-object
// table, per-class [Allocations] counters, optional per-class [CallTree],
// and lifecycle. These share one lock and one identity, since nothing else
// touches any of them independently.
//
// Multiple captures observe every event independently; they never share
// tables, counters, or trees, even when tracking the same class.
type Capture struct {
	broker        *Broker
	source        EventSource
	stackCapturer StackCapturer

	mu            sync.RWMutex
	running       bool
	enabled       bool // re-entrancy guard: false while a callback is executing
	all           bool
	classes       map[ClassRef]*classSubscription
	table         map[ObjectIdentity]*tableEntry
	disableSource func()
}

// NewCapture creates a capture bound to broker and source. It starts
// stopped; call [Capture.Start] to begin observing.
func NewCapture(broker *Broker, source EventSource, opts ...CaptureOption) *Capture {
	cfg := captureConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Capture{
		broker:        broker,
		source:        source,
		stackCapturer: cfg.stackCapturer,
		enabled:       true,
		classes:       make(map[ClassRef]*classSubscription),
		table:         make(map[ObjectIdentity]*tableEntry),
	}
}

// TrackAll subscribes this capture to every class the event source reports,
// rather than an explicit set. It must be called before [Capture.Start].
func (c *Capture) TrackAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = true
}

// Track adds class to the subscribed set, replacing any existing callback
// for it. If class was previously tracked and then [Capture.Untrack]-ed,
// this starts it again with zero counters; if class is currently tracked,
// its counters, table entries, and call tree (if any) are left untouched —
// only the callback is replaced.
func (c *Capture) Track(class ClassRef, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptionLocked(class).callback = cb
}

// EnableCallTree binds a [CallTree] to class, creating one if none exists
// yet, and returns it for querying. Tracked NEW events for class will record
// their stack into this tree (via the capture's configured
// [StackCapturer]); the corresponding FREE decrements the recorded path.
func (c *Capture) EnableCallTree(class ClassRef) *CallTree {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.subscriptionLocked(class)
	if sub.tree == nil {
		sub.tree = NewCallTree()
	}
	return sub.tree
}

// CallTreeFor returns the call tree bound to class, if any.
func (c *Capture) CallTreeFor(class ClassRef) (*CallTree, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.classes[class]
	if !ok || sub.tree == nil {
		return nil, false
	}
	return sub.tree, true
}

// subscriptionLocked returns (creating if necessary) the subscription for
// class. Caller must hold c.mu for writing.
func (c *Capture) subscriptionLocked(class ClassRef) *classSubscription {
	sub, ok := c.classes[class]
	if !ok {
		sub = &classSubscription{}
		c.classes[class] = sub
	}
	return sub
}

// Untrack removes class from the subscribed set and zeros its counters and
// table entries. A no-op if class was not tracked.
func (c *Capture) Untrack(class ClassRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.classes[class]; !ok {
		return
	}
	delete(c.classes, class)
	for id, e := range c.table {
		if e.class == class {
			delete(c.table, id)
		}
	}
}

// Tracking reports whether class is currently subscribed — either
// explicitly, or implicitly because [Capture.TrackAll] was called.
func (c *Capture) Tracking(class ClassRef) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.classes[class]
	return ok
}

// Running reports whether the capture is currently started.
func (c *Capture) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// CountFor returns class's retained count, or 0 if class is not tracked.
func (c *Capture) CountFor(class ClassRef) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.classes[class]
	if !ok {
		return 0
	}
	return sub.allocations.Retained()
}

// AllocationsFor returns class's full counter triple, or the zero value if
// class is not tracked.
func (c *Capture) AllocationsFor(class ClassRef) Allocations {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.classes[class]
	if !ok {
		return Allocations{}
	}
	return sub.allocations
}

// EachTracked iterates every live entry for class, calling fn with its
// identity and user state. Entries whose FREE has been observed are never
// present in the table, so there is nothing further to skip: the table is,
// by construction, exactly the drained-live view.
func (c *Capture) EachTracked(class ClassRef, fn func(identity ObjectIdentity, state any)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, e := range c.table {
		if e.class == class {
			fn(id, e.state)
		}
	}
}

// Clear resets all counters, the capture table, and every call tree, but
// preserves subscriptions, callbacks, and the running state. Safe to call
// while running.
func (c *Capture) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.classes {
		sub.allocations.clear()
		if sub.tree != nil {
			sub.tree.Clear()
		}
	}
	c.table = make(map[ObjectIdentity]*tableEntry)
}

// Start registers this capture with its event source for NEW/FREE
// notifications on its subscribed classes. Returns false, with no state
// change, if already running.
func (c *Capture) Start() bool {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return false
	}
	filter := c.buildFilterLocked()
	c.mu.Unlock()

	disable, err := c.source.Enable(filter)
	if err != nil {
		return false
	}

	c.mu.Lock()
	if c.running {
		// lost a race against a concurrent Start
		c.mu.Unlock()
		disable()
		return false
	}
	c.running = true
	c.disableSource = disable
	c.mu.Unlock()

	c.broker.register(c)
	return true
}

func (c *Capture) buildFilterLocked() ClassFilter {
	if c.all {
		return ClassFilter{All: true}
	}
	classes := make([]ClassRef, 0, len(c.classes))
	for class := range c.classes {
		classes = append(classes, class)
	}
	return ClassFilter{Classes: classes}
}

// Stop disables the event source, then requests a full drain of pending
// events, so counters reflect every NEW/FREE enqueued before the call, and
// then unregisters from the broker. Returns false, with no state change, if
// not running.
func (c *Capture) Stop() bool {
	c.mu.RLock()
	running := c.running
	disable := c.disableSource
	c.mu.RUnlock()
	if !running {
		return false
	}

	if disable != nil {
		disable()
	}

	// The capture is still registered and running, so this flush delivers
	// everything enqueued before Stop was called.
	c.broker.Flush(context.Background())

	c.mu.Lock()
	c.running = false
	c.disableSource = nil
	c.mu.Unlock()

	c.broker.unregister(c)
	return true
}

// handleNew records a NEW observation for identity. It is only ever called
// from [Broker.Flush], already wrapped in a recover to isolate callback
// panics.
func (c *Capture) handleNew(class ClassRef, identity ObjectIdentity) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	sub, ok := c.classes[class]
	if !ok {
		if !c.all {
			c.mu.Unlock()
			return
		}
		sub = c.subscriptionLocked(class)
	}
	if _, exists := c.table[identity]; exists {
		// spurious duplicate NEW for an identity we already track: no-op.
		c.mu.Unlock()
		return
	}

	entry := &tableEntry{class: class}
	c.table[identity] = entry
	sub.allocations.recordNew()

	if sub.tree != nil {
		var stack []Frame
		if c.stackCapturer != nil {
			stack = c.stackCapturer.CaptureStack()
		}
		entry.leaf = sub.tree.Record(stack)
	}

	cb := sub.callback
	invoke := cb != nil && c.enabled
	if invoke {
		c.enabled = false
	}
	c.mu.Unlock()

	if !invoke {
		return
	}

	result := c.invokeCallback(func() any { return cb(class, New, nil) })

	c.mu.Lock()
	if e, ok := c.table[identity]; ok {
		e.state = result
	}
	c.mu.Unlock()
}

// handleFree records a FREE observation for identity.
func (c *Capture) handleFree(class ClassRef, identity ObjectIdentity) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	entry, ok := c.table[identity]
	if !ok {
		// Born before tracking started, or already removed: ignore
		// entirely, so the retained count never goes negative.
		c.mu.Unlock()
		return
	}
	delete(c.table, identity)

	sub := c.classes[entry.class]
	sub.allocations.recordFree()
	if entry.leaf != nil {
		entry.leaf.DecrementPath()
	}

	cb := sub.callback
	invoke := cb != nil && c.enabled
	if invoke {
		c.enabled = false
	}
	c.mu.Unlock()

	if !invoke {
		return
	}

	c.invokeCallback(func() any { cb(entry.class, Free, entry.state); return nil })
}

// invokeCallback runs fn with c.mu released and the re-entrancy guard still
// engaged (the caller has set enabled to false), so a callback
// that itself triggers NEW/FREE handling on this same capture observes the
// guard as engaged — bounding the recursion to depth 1 — rather than
// deadlocking against c.mu.
func (c *Capture) invokeCallback(fn func() any) (result any) {
	defer func() {
		c.mu.Lock()
		c.enabled = true
		c.mu.Unlock()
	}()
	return fn()
}
