package cardqueue

import (
	"sync/atomic"

	"github.com/region-gc/cardrefine/pkg/safepoint"
)

// BufferList is the global lock-free LIFO of completed buffers shared
// by every mutator and refinement worker in the process. Push is
// wait-free. Pop runs inside a [safepoint.Epoch] critical section so
// that a concurrent reclaim (returning a just-popped node to its
// [BufferPool] for reuse) cannot hand the same address back out while
// another Pop is still mid-CAS against the stale head it observed -
// the classic ABA hazard of a manually recycled lock-free stack.
//
// numCards is published atomically and kept consistent with list
// contents: Push increments it *before* linking the node in, and Pop
// decrements it *after* unlinking, so any concurrent observer's read of
// NumCards is an overestimate, never an underestimate. Equality with
// the true sum holds between operations.
type BufferList struct {
	head     atomic.Pointer[Buffer]
	numCards atomic.Int64
	epoch    safepoint.Epoch
}

// NewBufferList returns an empty list.
func NewBufferList() *BufferList {
	return &BufferList{}
}

// Push links node onto the list. Wait-free: a single CAS loop with no
// blocking or allocation.
func (l *BufferList) Push(node *Buffer) {
	l.numCards.Add(int64(node.Size()))

	for {
		old := l.head.Load()
		node.next = old

		if l.head.CompareAndSwap(old, node) {
			return
		}
	}
}

// Pop removes and returns the most recently pushed node, or nil if the
// list is empty. Runs inside a critical section; callers MUST call
// [BufferList.SynchronizeReclaim] before returning a popped node to its
// [BufferPool] (see Buffer lifecycle notes on BufferPool.Release).
func (l *BufferList) Pop() *Buffer {
	return safepoint.CriticalSection(&l.epoch, func() *Buffer {
		for {
			old := l.head.Load()
			if old == nil {
				return nil
			}

			next := old.next

			if l.head.CompareAndSwap(old, next) {
				l.numCards.Add(-int64(old.Size()))
				old.next = nil

				return old
			}
		}
	})
}

// PopAll atomically detaches the entire chain and returns its head,
// leaving the list empty. Safepoint-only: callers must guarantee no
// concurrent Push/Pop is in flight (true at a safepoint by
// construction), which is why this does not need the critical-section
// treatment Pop requires.
func (l *BufferList) PopAll() *Buffer {
	return l.head.Swap(nil)
}

// NumCards returns the currently published card count.
func (l *BufferList) NumCards() int64 {
	return l.numCards.Load()
}

// ResetNumCards zeroes the published count. Safepoint-only, used after
// PopAll has detached (and the caller has released) every node.
func (l *BufferList) ResetNumCards() {
	l.numCards.Store(0)
}

// SynchronizeReclaim blocks until every Pop critical section that began
// before this call has completed. Call this once, after popping a node
// (or a whole PopAll chain) and before handing any of those nodes back
// to a [BufferPool], to close the ABA window described on [BufferList].
func (l *BufferList) SynchronizeReclaim() {
	l.epoch.Synchronize()
}

// nodesOf walks a PopAll-detached chain into a slice, most-recent
// first. Convenience for callers (WCQS, retirement task) that want to
// range over the batch instead of following next pointers by hand.
func nodesOf(head *Buffer) []*Buffer {
	var nodes []*Buffer

	for n := head; n != nil; n = n.next {
		nodes = append(nodes, n)
	}

	return nodes
}

// Nodes walks a PopAll-detached chain into a slice, most-recent first.
// Exported for callers outside this package (e.g. [pkg/retire]'s
// DCQSet) that detach a chain via their own BufferList and need to
// range over it without reaching into Buffer's unexported next field.
func Nodes(head *Buffer) []*Buffer {
	return nodesOf(head)
}
