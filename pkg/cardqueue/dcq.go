package cardqueue

// DCQSink is the external, global Dirty-Card Queue set that a DCQ
// publishes full buffers to. Its own internals - how refinement
// workers drain it, the mutator self-refinement threshold,
// paused-buffer lists - are out of scope for this package;
// [github.com/region-gc/cardrefine/pkg/retire] implements one.
type DCQSink interface {
	// Publish hands a filled buffer to the global set for refinement.
	Publish(buf *Buffer)
}

// DirtyCardQueue is a per-thread, fill-downward log of card-entry
// pointers destined for refinement. Not safe for
// concurrent use; exactly one mutator or worker owns a given queue.
type DirtyCardQueue struct {
	pool *BufferPool
	sink DCQSink

	buf   *Buffer
	index int
}

// NewDirtyCardQueue constructs an empty queue backed by pool, whose
// filled buffers are published to sink.
func NewDirtyCardQueue(pool *BufferPool, sink DCQSink) *DirtyCardQueue {
	q := &DirtyCardQueue{pool: pool, sink: sink}
	q.buf = pool.Allocate()
	q.index = q.buf.Capacity()

	return q
}

// Size returns the number of entries in the queue's current buffer.
// Entries already published in prior buffers are not counted here; a
// DCQ only ever reports its live buffer's fill level.
func (q *DirtyCardQueue) Size() int {
	return q.buf.Capacity() - q.index
}

// Empty reports whether the current buffer holds no entries.
func (q *DirtyCardQueue) Empty() bool {
	return q.index == q.buf.Capacity()
}

// Discard empties the queue's current buffer in place without
// publishing it anywhere. Used only by the cancellation path: unlike
// Flush, the buffer's pending entries are dropped, not handed to the
// sink, because cancellation means the logged writes are moot.
func (q *DirtyCardQueue) Discard() {
	q.index = q.buf.Capacity()
}

// installFreshBuffer publishes the current buffer (if non-empty after
// the caller's intended write, callers check that themselves) and
// installs a new one.
func (q *DirtyCardQueue) installFreshBuffer() {
	q.sink.Publish(q.buf)
	q.buf = q.pool.Allocate()
	q.index = q.buf.Capacity()
}

// Enqueue appends a single card index, publishing and replacing the
// current buffer first if it is full.
func (q *DirtyCardQueue) Enqueue(card CardIndex) {
	if q.index == 0 {
		q.installFreshBuffer()
	}

	q.index--
	q.buf.data()[q.index] = uintptr(card)
}

// Flush publishes the current buffer to the sink (even if not full)
// and installs a fresh empty one. Used at thread detach, at the start
// of every evacuation pause, and by the pre-evacuation retirement
// task.
func (q *DirtyCardQueue) Flush() {
	q.sink.Publish(q.buf)
	q.buf = q.pool.Allocate()
	q.index = q.buf.Capacity()
}

// bulkWriter supports the WCQ dirtying path's direct-write
// optimization: entries are stored straight into the DCQ's backing
// buffer without going through Enqueue, deferring the
// index update until the end of the batch. When the buffer fills
// mid-batch, the writer falls back to Enqueue for exactly one card (to
// correctly trigger the publish-and-install transition), then resumes
// bulk writes. Returns whether any mid-batch full-buffer handoff
// occurred.
type bulkWriter struct {
	q      *DirtyCardQueue
	index  int
	handed bool
}

func newBulkWriter(q *DirtyCardQueue) *bulkWriter {
	return &bulkWriter{q: q, index: q.index}
}

// put appends one card index using the batch-optimized path.
func (w *bulkWriter) put(card CardIndex) {
	q := w.q

	if w.index == 0 {
		// Mid-batch overflow: commit the batch so far, then fall back to
		// the normal single-card path, which publishes the full buffer
		// and installs a fresh one.
		q.index = 0
		q.Enqueue(card)
		w.index = q.index
		w.handed = true

		return
	}

	w.index--
	q.buf.data()[w.index] = uintptr(card)
}

// finish ends the batch, committing the deferred index into the queue,
// and reports whether any full-buffer handoff happened along the way.
// The queue's Size/Empty are only accurate again after finish.
func (w *bulkWriter) finish() bool {
	w.q.index = w.index

	return w.handed
}
