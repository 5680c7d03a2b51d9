// Package cardqueue implements the mutator-side half of a regionalized
// collector's remembered-set bookkeeping: per-thread Written-Card Queues
// (WCQ) populated by the write barrier, per-thread Dirty-Card Queues
// (DCQ) that feed refinement, the buffer pool and lock-free
// completed-buffer list backing both, and the global Written-Card Queue
// Set (WCQS) that glues them together.
//
// cardqueue intentionally knows nothing about the object heap, the
// card-table byte map's storage, or how refinement actually turns a
// dirty card into a remembered-set entry; those are represented here
// only as the [CardTable] interface and the caller-supplied DCQ/stats
// plumbing. See [github.com/region-gc/cardrefine/pkg/retire] for the
// safepoint-time drain that ties per-thread queues into a parallel
// retirement task, and [github.com/region-gc/cardrefine/pkg/refineplan]
// for the controller that decides how many refinement workers should be
// running.
//
// # Concurrency
//
// WCQ and DCQ values are per-thread and must not be shared across
// goroutines without external synchronization (exactly one "mutator"
// owns each). [WrittenCardQueueSet] and [BufferList] are safe for
// concurrent use by many mutators and refinement workers at once.
package cardqueue
