package cardqueue

import "sync/atomic"

// fullFence issues a full store-store/load-load barrier: every
// overflow handler calls this before running the filter transform that
// flips a card from clean to dirty, so the app stores that produced the
// logged entries are guaranteed to happen-before any reader observing
// the card as dirty.
//
// Go's memory model ties happens-before to atomic operations and
// channel/mutex synchronization, not to a standalone fence primitive;
// an uncontended atomic RMW on a dedicated variable gives the same
// full-barrier semantics on every architecture Go supports, which is
// what this does instead of exposing an architecture-specific asm
// fence.
var fenceCounter atomic.Uint64

func fullFence() {
	fenceCounter.Add(1)
}
