package allocprofiler

// DeferredQueue is a growable contiguous buffer of [Event] slots: an
// append-only array with doubling growth, reset to zero length (not zero
// capacity) on [DeferredQueue.Clear].
//
// Thread Safety: DeferredQueue is NOT thread-safe — the caller (here,
// [Broker]) must provide external synchronization. The hot-path contract
// further requires that
// [DeferredQueue.Push] never allocate once maxCapacity is reached: a queue
// constructed with a positive maxCapacity stops growing and instead reports
// overflow, so the caller can drop the event and bump a counter rather than
// allocate from a possibly-unsafe context.
type DeferredQueue struct { // betteralign:ignore
	slots       []Event
	length      int
	maxCapacity int // 0 means unbounded (grows by doubling indefinitely)
}

// NewDeferredQueue creates a queue with the given initial capacity. A
// maxCapacity of 0 means the queue grows without bound; a positive
// maxCapacity caps growth, after which Push reports overflow instead of
// allocating.
func NewDeferredQueue(initialCapacity, maxCapacity int) *DeferredQueue {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &DeferredQueue{
		slots:       make([]Event, 0, initialCapacity),
		maxCapacity: maxCapacity,
	}
}

// Push appends a new slot and returns a pointer to it for the caller to
// populate in place, avoiding a copy of Event through the call. ok is false
// if the queue is at maxCapacity and cannot grow further — in which case the
// returned pointer is nil and must not be used.
func (q *DeferredQueue) Push() (slot *Event, ok bool) {
	if len(q.slots) == cap(q.slots) {
		if q.maxCapacity > 0 && cap(q.slots) >= q.maxCapacity {
			return nil, false
		}
		q.grow()
	}
	q.slots = q.slots[:len(q.slots)+1]
	q.length++
	return &q.slots[q.length-1], true
}

// grow doubles capacity (a zero capacity grows to 16), capped at maxCapacity
// if set.
func (q *DeferredQueue) grow() {
	newCap := cap(q.slots) * 2
	if newCap == 0 {
		newCap = 16
	}
	if q.maxCapacity > 0 && newCap > q.maxCapacity {
		newCap = q.maxCapacity
	}
	grown := make([]Event, len(q.slots), newCap)
	copy(grown, q.slots)
	q.slots = grown
}

// Len returns the number of slots currently populated.
func (q *DeferredQueue) Len() int {
	return q.length
}

// At returns a pointer to the slot at index i, for in-place mutation (e.g.
// tombstoning during drain). It panics if i is out of range, matching slice
// indexing semantics.
func (q *DeferredQueue) At(i int) *Event {
	return &q.slots[i]
}

// Clear resets the length to zero but keeps the underlying capacity, so
// repeated fill/drain cycles do not re-allocate.
func (q *DeferredQueue) Clear() {
	for i := range q.slots {
		q.slots[i].reset()
	}
	q.slots = q.slots[:0]
	q.length = 0
}
