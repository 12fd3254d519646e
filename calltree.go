package allocprofiler

import "sort"

// SortMetric selects which counter [CallTree.TopPaths] and
// [CallTree.Hotspots] sort by.
type SortMetric uint8

const (
	// ByTotal sorts by total (churn) count.
	ByTotal SortMetric = iota
	// ByRetained sorts by retained (live) count.
	ByRetained
)

// Node is one frame in a [CallTree]: a prefix-compressed stack tree node.
// The root node (returned by [NewCallTree]) has a nil Location and nil
// Parent; every other node represents one observed stack frame.
//
// Total and Retained are subtree rollups: they include every allocation
// recorded at this node or at any descendant. OwnTotal and OwnRetained count
// only allocations whose stack terminated exactly at this node — distinct
// from the rollup because one recorded stack may be an exact prefix of
// another (e.g. a function that sometimes allocates directly and is
// sometimes called one level deeper before allocating), leaving a node with
// both children and allocations of its own.
type Node struct { // betteralign:ignore
	Location    *Frame
	Parent      *Node
	children    map[string]*Node
	Total       uint64
	Retained    uint64
	OwnTotal    uint64
	OwnRetained uint64
}

// CallTree is a prefix-compressed tree of allocation stacks with dual
// counters maintained transactionally along the birth/death path. Allocation
// stacks sharing a common prefix share the nodes for that prefix, making
// per-event bookkeeping O(stack depth) rather than O(stack depth ×
// allocations).
//
// CallTree is not safe for concurrent use; callers (here, [Capture]) must
// serialize access the same way the capture table is serialized.
type CallTree struct {
	root *Node
}

// NewCallTree creates an empty call tree.
func NewCallTree() *CallTree {
	return &CallTree{root: newNode(nil, nil)}
}

func newNode(location *Frame, parent *Node) *Node {
	return &Node{Location: location, Parent: parent, children: make(map[string]*Node)}
}

// Record walks from the root, creating nodes as needed for each frame, then
// increments total and retained along the path from leaf to root, plus the
// terminal node's own count. It returns the leaf node, whose
// [Node.DecrementPath] the caller should invoke on the corresponding FREE.
// An empty stack records nothing and returns nil.
func (t *CallTree) Record(stack []Frame) *Node {
	if len(stack) == 0 {
		return nil
	}

	n := t.root
	for i := range stack {
		key := stack[i].LocationKey()
		child, ok := n.children[key]
		if !ok {
			frame := stack[i]
			child = newNode(&frame, n)
			n.children[key] = child
		}
		n = child
	}

	n.incrementPath()
	return n
}

// incrementPath increments this node's own terminal count, then walks
// leaf->root incrementing both subtree rollup counters on each node.
func (n *Node) incrementPath() {
	n.OwnTotal++
	n.OwnRetained++
	for cur := n; cur != nil; cur = cur.Parent {
		cur.Total++
		cur.Retained++
	}
}

// DecrementPath decrements this node's own retained terminal count, then
// walks leaf->root decrementing the subtree Retained rollup only (the object
// died, but it still counts toward total churn). Call exactly once per leaf
// handle returned by [CallTree.Record].
func (n *Node) DecrementPath() {
	n.OwnRetained--
	for cur := n; cur != nil; cur = cur.Parent {
		cur.Retained--
	}
}

// PathEntry is one root-to-leaf allocation path, as returned by
// [CallTree.TopPaths].
type PathEntry struct {
	Frames   []Frame
	Total    uint64
	Retained uint64
}

// HotspotEntry is one location's aggregated counters across every node that
// shares its [Frame.LocationKey], as returned by [CallTree.Hotspots].
type HotspotEntry struct {
	Location Frame
	Total    uint64
	Retained uint64
}

// TopPaths enumerates one path entry per distinct recorded stack — every
// node that was ever itself a recorded terminus, not merely nodes with no
// children — dropping the rootless prefix, sorted descending by the
// selected metric, truncated to limit entries. A non-positive limit returns
// an empty slice. Ties may appear in any order.
//
// A node with OwnTotal > 0 still contributes its own entry even if it later
// gained children (i.e. a shorter recorded stack is an exact prefix of a
// longer one recorded afterwards): each is a distinct observed stack and
// must appear as its own path, using that node's own terminal counts rather
// than its subtree rollup.
func (t *CallTree) TopPaths(limit int, by SortMetric) []PathEntry {
	if limit <= 0 {
		return nil
	}

	var entries []PathEntry
	var walk func(n *Node, prefix []Frame)
	walk = func(n *Node, prefix []Frame) {
		if n.OwnTotal > 0 {
			frames := make([]Frame, len(prefix))
			copy(frames, prefix)
			entries = append(entries, PathEntry{Frames: frames, Total: n.OwnTotal, Retained: n.OwnRetained})
		}
		for _, child := range n.children {
			walk(child, append(prefix, *child.Location))
		}
	}
	walk(t.root, nil)

	sort.Slice(entries, func(i, j int) bool {
		return metricOf(entries[i].Total, entries[i].Retained, by) > metricOf(entries[j].Total, entries[j].Retained, by)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Hotspots sums every node's counters into a map keyed by LocationKey (i.e.
// by source point, regardless of which call path reached it), sorted
// descending by the selected metric and truncated to limit entries. A
// non-positive limit returns an empty slice.
func (t *CallTree) Hotspots(limit int, by SortMetric) []HotspotEntry {
	if limit <= 0 {
		return nil
	}

	agg := make(map[string]*HotspotEntry)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Location != nil {
			key := n.Location.LocationKey()
			e, ok := agg[key]
			if !ok {
				e = &HotspotEntry{Location: *n.Location}
				agg[key] = e
			}
			e.Total += n.Total
			e.Retained += n.Retained
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(t.root)

	entries := make([]HotspotEntry, 0, len(agg))
	for _, e := range agg {
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return metricOf(entries[i].Total, entries[i].Retained, by) > metricOf(entries[j].Total, entries[j].Retained, by)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func metricOf(total, retained uint64, by SortMetric) uint64 {
	if by == ByRetained {
		return retained
	}
	return total
}

// TotalAllocations returns the root's total count — every allocation ever
// recorded through this tree.
func (t *CallTree) TotalAllocations() uint64 {
	return t.root.Total
}

// RetainedAllocations returns the root's retained count — every allocation
// recorded through this tree whose FREE has not been observed.
func (t *CallTree) RetainedAllocations() uint64 {
	return t.root.Retained
}

// Clear replaces the root with a fresh empty root, discarding every node.
func (t *CallTree) Clear() {
	t.root = newNode(nil, nil)
}
