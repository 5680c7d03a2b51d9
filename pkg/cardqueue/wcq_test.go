package cardqueue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

func TestInlineWrittenCardQueueStartsEmpty(t *testing.T) {
	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterNone)
	require.True(t, q.Empty())
	require.Equal(t, 0, q.Size())
}

func TestInlineWrittenCardQueueAppendFillsDownward(t *testing.T) {
	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterNone)

	require.NoError(t, q.Append(0x1000))
	require.NoError(t, q.Append(0x2000))

	require.Equal(t, 2, q.Size())
	require.False(t, q.Empty())
}

func TestFilterPreviousReservesSentinelSlot(t *testing.T) {
	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterPrevious)

	full := q.EffectiveCapacity()
	require.Equal(t, 35, full)
	require.True(t, q.Empty())

	// One fewer than effective capacity still leaves room for a final
	// append with no overflow.
	for i := 0; i < full-1; i++ {
		require.NoError(t, q.Append(uintptr(i)))
	}

	require.NoError(t, q.Append(uintptr(full)))
	require.Equal(t, full, q.Size())
	require.False(t, q.Empty())

	q.Reset()
	require.True(t, q.Empty())
	require.Equal(t, 0, q.Size())
}

func TestInlineWrittenCardQueueOverflowInvokesHandler(t *testing.T) {
	table := newFakeCardTable(9)
	pool := cardqueue.NewBufferPool(64, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}
	dcq := cardqueue.NewDirtyCardQueue(pool, sink)
	stats := &cardqueue.RefinementStats{}

	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterNone)
	q.SetOverflowHandler(cardqueue.NewInlineOverflowHandler(table, dcq, stats))

	cap := q.EffectiveCapacity()
	for i := 0; i < cap; i++ {
		require.NoError(t, q.Append(uintptr(i)<<9))
	}

	// One more append overflows: the inline handler must dirty the
	// prior batch and reset the queue in place before storing the new
	// entry, leaving exactly one entry behind.
	require.NoError(t, q.Append(uintptr(cap)<<9))
	require.Equal(t, 1, q.Size())
	require.Equal(t, int64(cap), stats.WrittenDirtied)
}

func TestIndirectWrittenCardQueuePromotesFromInitialBuffer(t *testing.T) {
	table := newFakeCardTable(9)
	pool := cardqueue.NewBufferPool(16, cardqueue.AllocTagWCQ)
	dcqPool := cardqueue.NewBufferPool(16, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}
	dcq := cardqueue.NewDirtyCardQueue(dcqPool, sink)
	stats := &cardqueue.RefinementStats{}

	q := cardqueue.NewIndirectWrittenCardQueue(cardqueue.FilterNone, pool)
	q.SetOverflowHandler(cardqueue.NewIndirectOverflowHandler(table, dcq, stats))

	// The 2-slot initial spillover fills after two appends; the third
	// must trigger promotion to an external buffer rather than dirtying.
	require.NoError(t, q.Append(0x1000))
	require.NoError(t, q.Append(0x2000))
	require.NoError(t, q.Append(0x3000))

	require.Equal(t, 16, q.EffectiveCapacity())
	require.Equal(t, int64(0), stats.WrittenDirtied, "promotion must not have run the dirtying pipeline")
}

func TestIndirectWrittenCardQueueExternalOverflowDirties(t *testing.T) {
	table := newFakeCardTable(9)
	pool := cardqueue.NewBufferPool(4, cardqueue.AllocTagWCQ)
	dcqPool := cardqueue.NewBufferPool(16, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}
	dcq := cardqueue.NewDirtyCardQueue(dcqPool, sink)
	stats := &cardqueue.RefinementStats{}

	q := cardqueue.NewIndirectWrittenCardQueue(cardqueue.FilterNone, pool)
	q.SetOverflowHandler(cardqueue.NewIndirectOverflowHandler(table, dcq, stats))

	// Exhaust the 2-slot initial buffer, forcing promotion to a 4-slot
	// external buffer, then fill and overflow that too.
	require.NoError(t, q.Append(0x1000))
	require.NoError(t, q.Append(0x2000))
	require.NoError(t, q.Append(0x3000))
	require.NoError(t, q.Append(0x4000))
	require.NoError(t, q.Append(0x5000))
	require.NoError(t, q.Append(0x6000))

	require.Greater(t, stats.WrittenDirtied, int64(0))
}

// TestMarkCardsDirtyDropsSequentialDuplicateCards pins the None-filter
// transform with concrete numbers: four written addresses on 512-byte
// cards, three of which land on the same card back to back, must produce
// exactly two clean->dirty transitions and two filtered entries.
func TestMarkCardsDirtyDropsSequentialDuplicateCards(t *testing.T) {
	table := newFakeCardTable(9)
	pool := cardqueue.NewBufferPool(64, cardqueue.AllocTagDCQ)
	sink := &fakeSink{}
	dcq := cardqueue.NewDirtyCardQueue(pool, sink)
	stats := &cardqueue.RefinementStats{}

	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterNone)

	for _, addr := range []uintptr{0x10000, 0x10040, 0x10040, 0x20000} {
		require.NoError(t, q.Append(addr))
	}

	q.MarkCardsDirty(table, dcq, stats)

	require.Equal(t, int64(2), stats.WrittenDirtied)
	require.Equal(t, int64(2), stats.WrittenFiltered)
	require.Equal(t, int64(4), stats.WrittenCardTotal)
	require.True(t, q.Empty())

	require.Equal(t, cardqueue.CardDirty, table.Load(cardqueue.CardIndex(0x10000>>9)))
	require.Equal(t, cardqueue.CardDirty, table.Load(cardqueue.CardIndex(0x20000>>9)))
}

func TestResetReinstallsSentinelAfterAppends(t *testing.T) {
	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterPrevious)

	require.NoError(t, q.Append(1))
	require.NoError(t, q.Append(2))
	require.False(t, q.Empty())

	q.Reset()
	require.True(t, q.Empty())
	require.Equal(t, 35, q.EffectiveCapacity())
}

func TestAppendIsNoOpWhenWrittenCardQueuesDisabled(t *testing.T) {
	require.True(t, cardqueue.WrittenCardQueuesEnabled())

	cardqueue.SetWrittenCardQueuesEnabled(false)

	defer cardqueue.SetWrittenCardQueuesEnabled(true)

	q := cardqueue.NewInlineWrittenCardQueue(cardqueue.FilterNone)
	require.NoError(t, q.Append(0x1000))
	require.True(t, q.Empty())
}
