package retire

import (
	"sync"
	"sync/atomic"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

// DCQSet is the global Dirty-Card Queue collaborator every per-thread
// [cardqueue.DirtyCardQueue] publishes full buffers to.
// It owns the completed-buffer list refinement workers drain, a
// mutator self-refinement threshold the retirement task disables
// during its run, and a "paused" list for buffers belonging to threads
// that are temporarily not being swept.
type DCQSet struct {
	completed *cardqueue.BufferList
	pool      *cardqueue.BufferPool

	mutatorThreshold atomic.Int64

	mu     sync.Mutex
	paused []*cardqueue.Buffer
}

// NewDCQSet constructs an empty set whose buffers recycle through pool.
func NewDCQSet(pool *cardqueue.BufferPool) *DCQSet {
	return &DCQSet{completed: cardqueue.NewBufferList(), pool: pool}
}

// Publish implements [cardqueue.DCQSink]: every per-thread DCQ that
// flushes or fills publishes here.
func (d *DCQSet) Publish(buf *cardqueue.Buffer) {
	d.completed.Push(buf)
}

// Take pops one completed buffer for a refinement worker, or nil.
func (d *DCQSet) Take() *cardqueue.Buffer {
	return d.completed.Pop()
}

// SynchronizeReclaim closes the ABA window before a popped buffer is
// released back to the pool.
func (d *DCQSet) SynchronizeReclaim() {
	d.completed.SynchronizeReclaim()
}

// Release returns buf to the backing pool.
func (d *DCQSet) Release(buf *cardqueue.Buffer) {
	d.pool.Release(buf)
}

// NewDirtyCardQueue builds a fresh queue backed by this set's pool and
// publishing to this set. Used by the retirement task to give each
// parallel worker its own scratch DCQ for the post-sweep completed-
// buffer drain, rather than reusing a live thread's
// queue that some other worker might concurrently touch.
func (d *DCQSet) NewDirtyCardQueue() *cardqueue.DirtyCardQueue {
	return cardqueue.NewDirtyCardQueue(d.pool, d)
}

// NumCards reports the currently published pending-refinement count.
func (d *DCQSet) NumCards() int64 {
	return d.completed.NumCards()
}

// SetMutatorRefinementThreshold sets the pending-card count above
// which a mutator thread is expected to self-refine rather than wait
// for the concurrent worker pool. The retirement task sets this to
// [MaxThreshold] for its duration to disable mutator self-service.
func (d *DCQSet) SetMutatorRefinementThreshold(v int64) {
	d.mutatorThreshold.Store(v)
}

// MutatorRefinementThreshold returns the current threshold.
func (d *DCQSet) MutatorRefinementThreshold() int64 {
	return d.mutatorThreshold.Load()
}

// MaxThreshold disables mutator self-refinement entirely.
const MaxThreshold = int64(^uint64(0) >> 1)

// Pause sets buf aside instead of publishing it, for a thread the
// retirement task is not currently sweeping (e.g. detached but not yet
// reaped). Safe for concurrent use.
func (d *DCQSet) Pause(buf *cardqueue.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paused = append(d.paused, buf)
}

// Abandon drains and discards every completed and paused buffer this
// set holds, returning each to the backing pool without publishing it
// for refinement. Safepoint-only, mirroring
// [cardqueue.WrittenCardQueueSet.AbandonCompletedBuffers]; used by
// [AbandonPostBarrierLogsAndStats].
func (d *DCQSet) Abandon() int64 {
	head := d.completed.PopAll()
	d.completed.ResetNumCards()

	d.mu.Lock()
	pending := d.paused
	d.paused = nil
	d.mu.Unlock()

	var dropped int64

	for _, n := range cardqueue.Nodes(head) {
		dropped += int64(n.Size())
		d.pool.Release(n)
	}

	for _, buf := range pending {
		dropped += int64(buf.Size())
		d.pool.Release(buf)
	}

	return dropped
}

// DrainPaused moves every paused buffer onto the completed list.
// Safepoint-only: it runs serially during task construction, relying
// on no mutator concurrently pausing a buffer at the same time.
func (d *DCQSet) DrainPaused() {
	d.mu.Lock()
	pending := d.paused
	d.paused = nil
	d.mu.Unlock()

	for _, buf := range pending {
		d.completed.Push(buf)
	}
}
