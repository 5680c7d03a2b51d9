package cardqueue

import (
	"sync/atomic"

	"github.com/region-gc/cardrefine/internal/invariant"
)

// writtenCardQueuesEnabled mirrors the process-wide G1UseWrittenCardQueues
// flag. Go has no link-time symbol omission,
// so disabling the feature is a guarded early return in Append rather
// than the nine overflow entry points never existing: every queue
// still exists and can be constructed, it just never logs anything.
var writtenCardQueuesEnabled atomic.Bool

func init() {
	writtenCardQueuesEnabled.Store(true)
}

// SetWrittenCardQueuesEnabled flips the process-wide feature switch.
// Intended for startup configuration only (see internal/config); not
// meant to be toggled while mutators are actively appending.
func SetWrittenCardQueuesEnabled(v bool) {
	writtenCardQueuesEnabled.Store(v)
}

// WrittenCardQueuesEnabled reports the current feature-switch state.
func WrittenCardQueuesEnabled() bool {
	return writtenCardQueuesEnabled.Load()
}

// inlineCapacity is the fixed size of a WCQ's inline storage mode.
const inlineCapacity = 36

// initialCapacity is the tiny in-struct spillover buffer used by
// indirect-mode queues before their first external allocation.
const initialCapacity = 2

// storageKind selects whether a queue's entries live in its own inline
// array or in an externally allocated buffer.
type storageKind uint8

const (
	storageInline storageKind = iota
	storageIndirect
)

// WrittenCardQueue is a per-thread log of locations written by the
// mutator. Exactly one goroutine may own and call
// methods on a given queue; it is not safe for concurrent use.
type WrittenCardQueue struct {
	kind   storageKind
	filter FilterMode

	inline []uintptr // storageInline: backing array, len == inlineCapacity

	external     *Buffer   // storageIndirect: external buffer once allocated, else nil
	initial      []uintptr // storageIndirect: 2-slot spillover used before external exists
	usingInitial bool

	index int // fill cursor: entries occupy [index, capacity)

	pool     *BufferPool
	overflow OverflowHandler
}

// OverflowHandler reacts to a WCQ filling up. Exactly one handler
// (inline, indirect, or deferred, matching the queue's storage kind) is
// installed per queue via SetOverflowHandler; the filter mode is read
// from the queue itself, not from the handler.
type OverflowHandler interface {
	// Overflow is invoked when append finds index == 0 before storing.
	// It must make room (by transforming/dirtying entries in place, by
	// promoting to an external buffer, or by retargeting to a fresh
	// one) such that the queue has index > 0 when it returns.
	Overflow(q *WrittenCardQueue) error
}

// NewInlineWrittenCardQueue constructs a queue whose entries live in a
// fixed 36-slot inline array.
func NewInlineWrittenCardQueue(filter FilterMode) *WrittenCardQueue {
	q := &WrittenCardQueue{
		kind:   storageInline,
		filter: filter,
		inline: make([]uintptr, inlineCapacity),
	}
	q.reset()

	return q
}

// NewIndirectWrittenCardQueue constructs a queue that spills into pool-
// allocated external buffers once its 2-slot initial buffer fills.
func NewIndirectWrittenCardQueue(filter FilterMode, pool *BufferPool) *WrittenCardQueue {
	invariant.Check(pool.Capacity() > initialCapacity, "external buffer pool capacity %d too small", pool.Capacity())

	q := &WrittenCardQueue{
		kind:         storageIndirect,
		filter:       filter,
		initial:      make([]uintptr, initialCapacity),
		usingInitial: true,
		pool:         pool,
	}
	q.reset()

	return q
}

// SetOverflowHandler installs the overflow strategy. Construction is
// split from this so callers can wire a handler that itself references
// the queue (deferred-mode handlers need the WCQS).
func (q *WrittenCardQueue) SetOverflowHandler(h OverflowHandler) {
	q.overflow = h
}

// Filter returns the queue's process-wide filter mode.
func (q *WrittenCardQueue) Filter() FilterMode { return q.filter }

// capacity returns the buffer's total slot count.
func (q *WrittenCardQueue) capacity() int {
	switch {
	case q.kind == storageInline:
		return len(q.inline)
	case q.usingInitial:
		return len(q.initial)
	default:
		return q.external.Capacity()
	}
}

// EffectiveCapacity returns the number of slots actually available for
// entries: capacity minus one if the filter mode reserves a trailing
// sentinel slot.
func (q *WrittenCardQueue) EffectiveCapacity() int {
	if q.filter.usesSentinel() {
		return q.capacity() - 1
	}

	return q.capacity()
}

// storage returns the slice currently backing entries.
func (q *WrittenCardQueue) storage() []uintptr {
	switch {
	case q.kind == storageInline:
		return q.inline
	case q.usingInitial:
		return q.initial
	default:
		return q.external.data()
	}
}

// Size returns the number of logged entries. The FilterPrevious
// sentinel slot occupies [capacity-1] but is bookkeeping, not an
// entry, so it never counts.
func (q *WrittenCardQueue) Size() int {
	end := q.capacity()
	if q.filter.usesSentinel() {
		end--
	}

	return end - q.index
}

// Empty reports whether the queue holds no entries: index has its
// post-reset value (capacity, or capacity-1 with a sentinel).
func (q *WrittenCardQueue) Empty() bool {
	return q.Size() == 0
}

// reset sets index = capacity and, for FilterPrevious queues, installs
// the sentinel at the new trailing slot. This is the sole writer of
// the sentinel convention: exactly one place installs it, so "is this
// slot excluded from effective capacity" always has one source of
// truth.
func (q *WrittenCardQueue) reset() {
	q.index = q.capacity()

	if q.filter.usesSentinel() {
		s := q.storage()
		s[q.capacity()-1] = noMatchingCard
		q.index--
	}
}

// Reset empties the queue. Called on thread-attach and at the start of
// every evacuation pause.
func (q *WrittenCardQueue) Reset() {
	q.reset()
}

// Append records addr, running the overflow handler first if the
// queue has no room: when index would reach 0 before the store, the
// handler runs and must leave space behind.
func (q *WrittenCardQueue) Append(addr uintptr) error {
	if !writtenCardQueuesEnabled.Load() {
		return nil
	}

	if q.index == 0 {
		invariant.Check(q.overflow != nil, "written-card queue overflowed with no handler installed")

		if err := q.overflow.Overflow(q); err != nil {
			return err
		}
	}

	invariant.Check(q.index > 0, "overflow handler returned with no room")

	q.index--
	q.storage()[q.index] = addr

	return nil
}

// rebase installs buf as the queue's external storage, copying over
// any entries currently held in the old storage (inline, initial
// spillover, or a prior external buffer) and, for FilterPrevious
// queues, carrying the sentinel's *value* forward - this is not a
// reset: the sentinel remembers the last logged card across the
// overflow, so a fresh buffer must not forget it. Used both by
// initial-buffer promotion and by the deferred-overflow "allocate a
// fresh buffer" path.
func (q *WrittenCardQueue) rebase(buf *Buffer) {
	pending := q.filled()
	hasSentinel := q.filter.usesSentinel()

	var sentinel uintptr
	if hasSentinel {
		sentinel = q.storage()[q.capacity()-1]
	}

	usable := buf.Capacity()
	if hasSentinel {
		usable--
	}

	invariant.Check(len(pending) <= usable,
		"rebase: new buffer capacity %d (usable %d) too small for %d pending entries", buf.Capacity(), usable, len(pending))

	copy(buf.data()[usable-len(pending):usable], pending)

	if hasSentinel {
		buf.data()[buf.Capacity()-1] = sentinel
	}

	q.external = buf
	q.usingInitial = false
	q.index = usable - len(pending)
}

// filled returns the occupied entries, in log order (oldest last).
func (q *WrittenCardQueue) filled() []uintptr {
	cap := q.capacity()
	end := cap

	if q.filter.usesSentinel() {
		end = cap - 1
	}

	return q.storage()[q.index:end]
}

// TakeBuffer detaches and returns the queue's current external buffer,
// replacing it with a freshly allocated, empty one from pool. Only
// valid for indirect, non-initial queues; used by the deferred
// overflow handler to publish a filled buffer onto the global
// completed list. Unlike promoteFromInitial, the detached buffer's
// entries are not carried forward - there is no "pending" remainder,
// the whole point is handing the full buffer off - only a
// FilterPrevious sentinel's value survives onto the fresh buffer.
func (q *WrittenCardQueue) TakeBuffer() *Buffer {
	invariant.Check(q.kind == storageIndirect && !q.usingInitial, "TakeBuffer called on a queue with no external buffer")

	old := q.external
	hasSentinel := q.filter.usesSentinel()

	var sentinel uintptr
	if hasSentinel {
		sentinel = q.storage()[q.capacity()-1]
	}

	fresh := q.pool.Allocate()
	q.external = fresh
	q.index = fresh.Capacity()

	if hasSentinel {
		fresh.data()[fresh.Capacity()-1] = sentinel
		q.index--
	}

	return old
}

// promoteFromInitial allocates the first external buffer for an
// indirect queue still using its initial spillover, copying the
// spillover contents in.
func (q *WrittenCardQueue) promoteFromInitial() {
	invariant.Check(q.usingInitial, "promoteFromInitial called on a queue not using its initial buffer")

	q.rebase(q.pool.Allocate())
}
