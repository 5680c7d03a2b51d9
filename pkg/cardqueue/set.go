package cardqueue

import "sync/atomic"

// WrittenCardQueueSet is the process-global written-card queue set:
// the completed-buffer LIFO shared by every deferred-mode WCQ, plus
// the mutator-vs-worker dirtying-responsibility switch that the
// deferred overflow handler consults on every overflow.
type WrittenCardQueueSet struct {
	filter FilterMode
	table  CardTable

	completed *BufferList
	pool      *BufferPool

	// mutatorDirties is read by every deferred overflow handler and
	// written at safepoints (the retirement task clears it when a pause
	// begins): true means mutators dirty their own overflowed
	// buffers immediately, false means they hand buffers off whole for
	// a refinement worker to process later.
	mutatorDirties atomic.Bool

	abandoned atomic.Int64 // diagnostics: cards discarded by AbandonCompletedBuffers
}

// NewWrittenCardQueueSet constructs a set for queues of the given
// filter mode, whose completed buffers are read from table and
// recycled through pool.
func NewWrittenCardQueueSet(filter FilterMode, table CardTable, pool *BufferPool) *WrittenCardQueueSet {
	s := &WrittenCardQueueSet{
		filter:    filter,
		table:     table,
		completed: NewBufferList(),
		pool:      pool,
	}
	s.mutatorDirties.Store(true)

	return s
}

// MutatorShouldMarkCardsDirty reports the current dirtying
// responsibility: true if a mutator hitting WCQ overflow should run
// the filter/dirty pipeline itself rather than handing the buffer off.
func (s *WrittenCardQueueSet) MutatorShouldMarkCardsDirty() bool {
	return s.mutatorDirties.Load()
}

// SetMutatorShouldMarkCardsDirty flips the dirtying-responsibility
// switch. Callers (the retirement task, and the simulation CLIs once a
// pause ends) flip it only at a safepoint: flipping it while mutators are
// concurrently appending is safe (the flag only affects which overflow
// branch runs next), but flipping it mid-refinement-pass would let a
// worker and a mutator both believe they own the same buffer.
func (s *WrittenCardQueueSet) SetMutatorShouldMarkCardsDirty(v bool) {
	s.mutatorDirties.Store(v)
}

// EnqueueCompletedBuffer pushes a filled, not-yet-dirtied buffer onto
// the shared completed list (the deferred overflow handler's "push the
// filled buffer onto the global completed-buffer list untouched"
// branch).
func (s *WrittenCardQueueSet) EnqueueCompletedBuffer(buf *Buffer) {
	s.completed.Push(buf)
}

// TakeCompletedBuffer pops one buffer for a refinement worker to
// process, or nil if none are pending. Callers must call
// [WrittenCardQueueSet.SynchronizeReclaim] before returning the buffer
// to the pool.
func (s *WrittenCardQueueSet) TakeCompletedBuffer() *Buffer {
	return s.completed.Pop()
}

// SynchronizeReclaim closes the ABA window described on [BufferList]
// before a caller releases a popped buffer back to the pool.
func (s *WrittenCardQueueSet) SynchronizeReclaim() {
	s.completed.SynchronizeReclaim()
}

// NumCards returns the published count of cards sitting in completed,
// not-yet-refined buffers. Feeds the refinement-plan controller's
// predictors.
func (s *WrittenCardQueueSet) NumCards() int64 {
	return s.completed.NumCards()
}

// ProcessCompletedBuffer runs the filter-transform and dirtying
// pipeline against every entry in buf (a buffer taken from the
// completed list, never a live queue's in-progress storage) and hands
// the resulting card indices to dcq, accumulating stats. This is the
// worker-side counterpart of (*WrittenCardQueue).MarkCardsDirty for
// buffers that a mutator handed off whole rather than dirtying itself.
func (s *WrittenCardQueueSet) ProcessCompletedBuffer(buf *Buffer, dcq *DirtyCardQueue, stats *RefinementStats) bool {
	entries := buf.filled()
	stats.WrittenCardTotal += int64(len(entries))

	indices, dropped := filterTransform(s.filter, s.table, entries)
	stats.WrittenFiltered += int64(dropped)

	return enqueueCleanCards(s.table, indices, dcq, stats)
}

// MarkCardsDirty takes one completed buffer, runs it through the
// filter-transform and dirtying pipeline into dcq, and recycles the
// buffer, reporting whether a buffer was available to process at all.
// This is the refinement worker's unit of deferred-dirtying work: a
// worker loops on it until it returns false, then parks.
func (s *WrittenCardQueueSet) MarkCardsDirty(dcq *DirtyCardQueue, stats *RefinementStats) bool {
	buf := s.TakeCompletedBuffer()
	if buf == nil {
		return false
	}

	s.ProcessCompletedBuffer(buf, dcq, stats)

	s.SynchronizeReclaim()
	s.pool.Release(buf)

	return true
}

// AbandonCompletedBuffers drains and discards every buffer currently on
// the completed list without dirtying any cards, returning each buffer
// to pool. Used when a collection cycle decides the logged writes are
// moot (e.g. the region they targeted was reclaimed before refinement
// ran). Safepoint-only, like [BufferList.PopAll].
func (s *WrittenCardQueueSet) AbandonCompletedBuffers() int64 {
	head := s.completed.PopAll()
	s.completed.ResetNumCards()

	var dropped int64

	for _, buf := range nodesOf(head) {
		dropped += int64(buf.Size())
		s.pool.Release(buf)
	}

	s.abandoned.Add(dropped)

	return dropped
}

// Abandoned returns the cumulative count of cards ever discarded by
// AbandonCompletedBuffers, for diagnostics.
func (s *WrittenCardQueueSet) Abandoned() int64 {
	return s.abandoned.Load()
}
