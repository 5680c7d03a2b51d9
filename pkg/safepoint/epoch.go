// Package safepoint provides a small epoch-based rendezvous primitive used
// to serialize reclaim-sensitive lock-free operations against readers that
// may still be inspecting a node the writer is about to recycle.
//
// The motivating user is a lock-free list whose nodes get manually
// recycled: pushing never needs protection (it is a pure CAS loop),
// but popping does, because popped nodes are returned to a
// manually-managed free list and may be handed back out and overwritten
// while a concurrent pop is still dereferencing the "old head" it read
// before the CAS. The critical section makes that window visible to a
// Synchronize call so a safepoint-time drain can wait it out instead of
// racing it.
package safepoint

import (
	"runtime"
	"sync/atomic"
)

// Epoch is a reader-counted rendezvous gate. The zero value is ready to
// use with zero active critical sections.
type Epoch struct {
	active atomic.Int64
}

// Ticket represents one entered critical section. Callers must call
// Leave exactly once.
type Ticket struct {
	e *Epoch
}

// Enter marks the start of a critical section. Enter/Leave pairs may
// nest and overlap arbitrarily across goroutines; Enter never blocks.
func (e *Epoch) Enter() Ticket {
	e.active.Add(1)

	return Ticket{e: e}
}

// Leave ends the critical section started by the matching Enter.
func (t Ticket) Leave() {
	t.e.active.Add(-1)
}

// CriticalSection runs fn inside an entered/left critical section and
// returns fn's result. This is the shape nearly every caller wants
// ([pkg/cardqueue]'s Pop uses it); Enter/Ticket exist separately for
// call sites whose section does not fit in a single closure.
func CriticalSection[T any](e *Epoch, fn func() T) T {
	t := e.Enter()
	defer t.Leave()

	return fn()
}

// Synchronize blocks until no critical section entered before this call
// is still active. It is only meant to be called from a safepoint-style
// context (at most one synchronizing drain in flight at a time): unlike
// a full RCU grace period, this implementation does not protect against
// an unbounded number of concurrent Synchronize callers converging on
// different epochs, and the core package never calls it that way.
func (e *Epoch) Synchronize() {
	for e.active.Load() != 0 {
		// Mutators entering after this loop started are invisible to the
		// node we're reclaiming (they will observe the post-pop list
		// state), so we only need to wait out sections already in
		// progress, not newly starting ones.
		runtime.Gosched()
	}
}
