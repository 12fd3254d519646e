package allocprofiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredQueue_PushGrows(t *testing.T) {
	q := NewDeferredQueue(2, 0)
	for i := 0; i < 10; i++ {
		slot, ok := q.Push()
		require.True(t, ok)
		slot.Kind = New
		slot.Identity = ObjectIdentity(i)
	}
	require.Equal(t, 10, q.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, ObjectIdentity(i), q.At(i).Identity)
	}
}

func TestDeferredQueue_BoundedOverflowDrops(t *testing.T) {
	q := NewDeferredQueue(2, 2)
	_, ok := q.Push()
	require.True(t, ok)
	_, ok = q.Push()
	require.True(t, ok)
	_, ok = q.Push()
	assert.False(t, ok, "push past maxCapacity must report failure, not allocate")
	assert.Equal(t, 2, q.Len())
}

func TestDeferredQueue_ClearResetsLengthKeepsCapacity(t *testing.T) {
	q := NewDeferredQueue(4, 0)
	for i := 0; i < 4; i++ {
		_, _ = q.Push()
	}
	require.Equal(t, 4, q.Len())
	prevCap := cap(q.slots)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, prevCap, cap(q.slots))

	slot, ok := q.Push()
	require.True(t, ok)
	assert.Equal(t, None, slot.Kind, "a freshly pushed slot after Clear must be a zero/tombstoned Event")
}

func TestEvent_ResetTombstones(t *testing.T) {
	e := Event{Kind: New, Class: "widget", Identity: 7}
	e.reset()
	assert.Equal(t, None, e.Kind)
	assert.Nil(t, e.Class)
	assert.Equal(t, ObjectIdentity(0), e.Identity)
}
