// Package fakeruntime is an in-memory stand-in for a host runtime's
// allocation-event hooks and backtrace capture. It exists only so
// allocprofiler's own tests and examples can exercise
// [allocprofiler.EventSource] and [allocprofiler.StackCapturer] without
// binding to any real managed runtime.
package fakeruntime

import (
	"sync"

	"github.com/joeycumines/allocprofiler"
)

// Runtime is a minimal fake allocator: Allocate/Free enqueue NEW/FREE
// notifications into a [allocprofiler.Broker], as a real runtime's hot-path
// hook would. Every call is enqueued: the filter passed to Enable is recorded
// but not consulted by Allocate or Free. Call stacks for attribution come
// from [FixedStack], not from Runtime.
type Runtime struct {
	broker *allocprofiler.Broker

	mu       sync.Mutex
	nextID   uint64
	enabled  bool
	classes  map[allocprofiler.ClassRef]struct{}
	allClass bool
}

// New creates a Runtime whose Allocate/Free calls enqueue onto broker.
func New(broker *allocprofiler.Broker) *Runtime {
	return &Runtime{broker: broker, classes: make(map[allocprofiler.ClassRef]struct{})}
}

// Enable implements [allocprofiler.EventSource]. It is normally invoked by
// [allocprofiler.Capture.Start], not called directly by tests.
func (r *Runtime) Enable(filter allocprofiler.ClassFilter) (disable func(), err error) {
	r.mu.Lock()
	r.enabled = true
	r.allClass = filter.All
	r.classes = make(map[allocprofiler.ClassRef]struct{}, len(filter.Classes))
	for _, class := range filter.Classes {
		r.classes[class] = struct{}{}
	}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.enabled = false
		r.mu.Unlock()
	}, nil
}

// Allocate simulates a host runtime delivering a NEW notification for a
// freshly created object of the given class, returning its identity.
func (r *Runtime) Allocate(class allocprofiler.ClassRef) allocprofiler.ObjectIdentity {
	r.mu.Lock()
	r.nextID++
	id := allocprofiler.ObjectIdentity(r.nextID)
	r.mu.Unlock()

	r.broker.Enqueue(allocprofiler.New, class, id)
	return id
}

// Free simulates a host runtime delivering a FREE notification for an
// object previously returned by Allocate.
func (r *Runtime) Free(class allocprofiler.ClassRef, id allocprofiler.ObjectIdentity) {
	r.broker.Enqueue(allocprofiler.Free, class, id)
}

// FixedStack is a [allocprofiler.StackCapturer] that always returns the same
// configured stack, for deterministic call-tree tests.
type FixedStack struct {
	Frames []allocprofiler.Frame
}

// CaptureStack implements [allocprofiler.StackCapturer].
func (f FixedStack) CaptureStack() []allocprofiler.Frame {
	return f.Frames
}
