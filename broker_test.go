package allocprofiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_DropCounterOnOverflow(t *testing.T) {
	broker, err := NewBroker(WithInitialQueueCapacity(1), WithMaxQueueCapacity(1))
	require.NoError(t, err)
	broker.Enqueue(New, "H", 1)
	broker.Enqueue(New, "H", 2) // must be dropped: shard queue is already at its max

	snap := broker.Diagnostics().Snapshot()
	assert.EqualValues(t, 1, snap.Dropped)
}

// a maxQueueCap smaller than the requested initialQueueCap can never be
// honored once the shard's queue is constructed, so NewBroker must reject it
// loudly rather than silently start a shard already over its stated cap.
func TestBroker_RejectsInitialCapacityAboveMax(t *testing.T) {
	_, err := NewBroker(WithInitialQueueCapacity(64), WithMaxQueueCapacity(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueRegistrationFailed))
}

func TestBroker_ReentrantFlushIsNoOp(t *testing.T) {
	broker, err := NewBroker(WithInitialQueueCapacity(4))
	require.NoError(t, err)
	c := NewCapture(broker, noopSource{})

	var nestedFlushes int
	c.Track("H", func(class ClassRef, kind Kind, prior any) any {
		// A nested Flush call from within a drained handler must be a
		// no-op: the outer Flush already owns the guard, so this neither
		// recurses nor double-processes events.
		nestedFlushes++
		broker.Flush(context.Background())
		return nil
	})
	require.True(t, c.Start())
	defer c.Stop()

	broker.Enqueue(New, "H", 1)
	broker.Flush(context.Background())

	assert.Equal(t, 1, nestedFlushes)
	assert.EqualValues(t, 1, c.CountFor("H"))
}

func newReentrantHarness(t *testing.T) (*Broker, *Capture) {
	t.Helper()
	broker, err := NewBroker(WithInitialQueueCapacity(4))
	require.NoError(t, err)
	c := NewCapture(broker, noopSource{})
	c.Track("H", nil)
	require.True(t, c.Start())
	t.Cleanup(func() { c.Stop() })
	return broker, c
}

type noopSource struct{}

func (noopSource) Enable(ClassFilter) (func(), error) { return func() {}, nil }

func TestBroker_FlushDeliversInEnqueueOrder(t *testing.T) {
	broker, c := newReentrantHarness(t)

	broker.Enqueue(New, "H", 1)
	broker.Enqueue(New, "H", 2)
	broker.Enqueue(Free, "H", 1)
	broker.Flush(context.Background())

	assert.EqualValues(t, 1, c.CountFor("H"))
}

func TestBroker_ShardedEnqueuePreservesPerIdentityOrder(t *testing.T) {
	broker, err := NewBroker(WithShards(4), WithInitialQueueCapacity(4))
	require.NoError(t, err)
	c := NewCapture(broker, noopSource{})
	c.Track("H", nil)
	require.True(t, c.Start())
	defer c.Stop()

	broker.EnqueueShard(0, New, "H", 1)
	broker.EnqueueShard(1, New, "H", 2)
	broker.EnqueueShard(0, Free, "H", 1)
	broker.Flush(context.Background())

	assert.EqualValues(t, 1, c.CountFor("H"))
}
