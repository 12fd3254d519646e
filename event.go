package allocprofiler

import "fmt"

// Kind identifies the nature of an [Event].
type Kind uint8

const (
	// None is the tombstone kind: set on a slot once it has been fully
	// processed and its managed references cleared, so a collector pass
	// concurrent with a drain never walks a stale reference.
	None Kind = iota
	// New marks an object's birth.
	New
	// Free marks an object's death.
	Free
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case New:
		return "NEW"
	case Free:
		return "FREE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ObjectIdentity is an opaque, stable-for-lifetime integer assigned by the
// host runtime. It must not move under compaction, and must not be reused
// before the corresponding FREE has been processed.
type ObjectIdentity uint64

// ClassRef is an opaque handle into the host runtime's class registry. Its
// lifetime is governed by the runtime; the core stores it as supplied and
// never attempts to weaken or strengthen its reachability semantics.
type ClassRef any

// Frame is a single printable stack frame, as produced by a [StackCapturer].
type Frame struct {
	Path  string
	Line  int
	Label string
}

// LocationKey returns the canonical printable form of the frame, used to
// collapse distinct frame instances denoting the same source point.
func (f Frame) LocationKey() string {
	return fmt.Sprintf("%s:%d:%s", f.Path, f.Line, f.Label)
}

// Event is a single NEW/FREE (or tombstoned NONE) notification as it sits in
// a [DeferredQueue] slot. Slots are POD: Class is stored as an any, so a
// managed ClassRef value held across a collection must be one the runtime's
// marking pass can discover independent of this struct.
type Event struct {
	Kind     Kind
	Class    ClassRef
	Identity ObjectIdentity
}

// reset neutralizes the event's managed references and marks it a
// tombstone, so a collector scan concurrent with a drain never walks a
// stale reference and so a reused slot doesn't retain the prior Class.
func (e *Event) reset() {
	e.Kind = None
	e.Class = nil
	e.Identity = 0
}
