package allocprofiler

// ClassFilter selects which classes a [Capture] is subscribed to: either a
// specific set, or "all classes" when All is true.
type ClassFilter struct {
	All     bool
	Classes []ClassRef
}

// EventSource is the contract a host-runtime integration must satisfy to
// drive a [Capture]'s lifecycle. It is the only interface the core requires
// of the surrounding runtime bindings, which are themselves out of scope for
// this module.
//
// Enable is called from [Capture.Start] and must arrange for the runtime to
// begin delivering NEW/FREE notifications — via the broker's Enqueue path —
// for the given class filter. The returned disable function is called from
// [Capture.Stop] and must be idempotent.
type EventSource interface {
	Enable(filter ClassFilter) (disable func(), err error)
}

// StackCapturer captures the current call stack, as seen from above the
// allocation hook boundary, for attribution in a [CallTree]. An empty
// return means "no call tree" — [CallTree.Record] treats it as a no-op.
type StackCapturer interface {
	CaptureStack() []Frame
}

// StackCapturerFunc adapts a function to a [StackCapturer].
type StackCapturerFunc func() []Frame

// CaptureStack implements [StackCapturer].
func (f StackCapturerFunc) CaptureStack() []Frame {
	return f()
}
