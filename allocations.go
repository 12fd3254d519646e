package allocprofiler

// Allocations is the per-class, per-capture counter pair: total allocations
// observed and total frees observed. NewCount and FreeCount are monotone
// within a running interval; Clear resets them. All updates happen during a
// drain (single drainer at a time, guarded by the capture's mutex — see
// [Capture]), so no additional synchronization is required here; the type is
// plain data.
type Allocations struct {
	NewCount  uint64
	FreeCount uint64
}

// Retained returns NewCount - FreeCount. Always >= 0 for a capture's own
// bookkeeping, since a FREE for an identity absent from the capture table is
// ignored before ever reaching the counter.
func (a Allocations) Retained() uint64 {
	return a.NewCount - a.FreeCount
}

func (a *Allocations) recordNew() {
	a.NewCount++
}

func (a *Allocations) recordFree() {
	a.FreeCount++
}

func (a *Allocations) clear() {
	*a = Allocations{}
}
