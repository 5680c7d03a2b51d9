package cardqueue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

func TestDirtyCardQueueStartsEmpty(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}

	q := cardqueue.NewDirtyCardQueue(pool, sink)
	require.True(t, q.Empty())
	require.Equal(t, 0, q.Size())
}

func TestDirtyCardQueueEnqueuePublishesOnFull(t *testing.T) {
	pool := cardqueue.NewBufferPool(2, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}

	q := cardqueue.NewDirtyCardQueue(pool, sink)
	q.Enqueue(1)
	q.Enqueue(2)
	require.Empty(t, sink.published())

	// Third enqueue overflows the 2-slot buffer: the full one publishes
	// and a fresh one is installed.
	q.Enqueue(3)
	require.Len(t, sink.published(), 1)
	require.Equal(t, 1, q.Size())
}

func TestDirtyCardQueueFlushPublishesPartialBuffer(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}

	q := cardqueue.NewDirtyCardQueue(pool, sink)
	q.Enqueue(7)
	q.Flush()

	require.Len(t, sink.published(), 1)
	require.True(t, q.Empty())

	got := dirtiedCards(sink.published())
	require.Contains(t, got, cardqueue.CardIndex(7))
}

func TestDirtyCardQueueFlushOnEmptyStillPublishes(t *testing.T) {
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}

	q := cardqueue.NewDirtyCardQueue(pool, sink)
	q.Flush()

	require.Len(t, sink.published(), 1)
	require.True(t, sink.published()[0].Empty())
}
