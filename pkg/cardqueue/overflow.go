package cardqueue

import "github.com/region-gc/cardrefine/internal/invariant"

// filterTransform converts a WCQ's filled entries into card indices per
// the queue's filter mode, reporting how many raw
// entries were dropped as sequential duplicates along the way.
//
//   - FilterNone: entries are raw addresses; right-shift to a card
//     index and drop consecutive duplicates (the barrier had no
//     opportunity to dedupe these itself).
//   - FilterYoung: entries are already card indices; passed through.
//   - FilterPrevious: entries are already card indices with
//     consecutive duplicates already removed by the barrier; passed
//     through with zero additional drops.
func filterTransform(filter FilterMode, table CardTable, entries []uintptr) (indices []CardIndex, dropped int) {
	switch filter {
	case FilterNone:
		indices = make([]CardIndex, 0, len(entries))

		var last CardIndex

		haveLast := false

		for _, addr := range entries {
			idx := table.IndexForAddr(addr)
			if haveLast && idx == last {
				dropped++

				continue
			}

			indices = append(indices, idx)
			last = idx
			haveLast = true
		}

		return indices, dropped

	case FilterYoung, FilterPrevious:
		indices = make([]CardIndex, len(entries))
		for i, addr := range entries {
			indices[i] = CardIndex(addr)
		}

		return indices, 0

	default:
		invariant.Failf("unknown filter mode %d", uint8(filter))

		return nil, 0
	}
}

// enqueueCleanCards is the shared tail of every dirtying pipeline:
// for each card index, if the card's current value is not Clean it is
// counted as filtered; otherwise it is atomically transitioned to
// Dirty, counted as dirtied, and its index is appended to dcq via the
// bulk-write path. Returns whether any mid-batch DCQ full-buffer
// handoff occurred.
func enqueueCleanCards(table CardTable, indices []CardIndex, dcq *DirtyCardQueue, stats *RefinementStats) (flushed bool) {
	w := newBulkWriter(dcq)

	for _, idx := range indices {
		if table.Load(idx) != CardClean {
			stats.WrittenFiltered++

			continue
		}

		if !table.CompareAndSwap(idx, CardClean, CardDirty) {
			// Lost the race to another refiner/mutator; the card is no
			// longer clean, treat identically to an observed non-clean
			// card rather than retrying.
			stats.WrittenFiltered++

			continue
		}

		stats.WrittenDirtied++
		w.put(idx)
	}

	return w.finish()
}

// MarkCardsDirty transforms the queue's unread entries according to
// its filter mode and hands the resulting card indices to dcq,
// accumulating stats. Returns true iff at least one DCQ full-buffer
// handoff occurred.
func (q *WrittenCardQueue) MarkCardsDirty(table CardTable, dcq *DirtyCardQueue, stats *RefinementStats) bool {
	entries := q.filled()
	stats.WrittenCardTotal += int64(len(entries))

	indices, dropped := filterTransform(q.filter, table, entries)
	stats.WrittenFiltered += int64(dropped)

	flushed := enqueueCleanCards(table, indices, dcq, stats)

	q.reset()

	return flushed
}

// --- Overflow handlers -------------------------------------------------
//
// Three handler types, one per storage strategy {inline, indirect,
// deferred}. The filter dimension needs no per-handler copies: every
// pipeline goes through filterTransform, which already dispatches on
// the queue's FilterMode, so a {storage} x {filter} matrix of nine
// structs would differ only in a field value. The nine addressable
// EntryPoint* symbols in entrypoints.go layer the full cross product
// on top of these three for callers that need one symbol per
// combination.

// inlineOverflow handles inline-storage queues of any filter mode:
// there is nowhere else for entries to go, so overflow always runs the
// dirtying pipeline in place.
type inlineOverflow struct {
	table CardTable
	dcq   *DirtyCardQueue
	stats *RefinementStats
}

// NewInlineOverflowHandler builds the overflow handler for an inline
// WCQ. table/dcq/stats are the per-thread collaborators the handler
// feeds on every overflow.
func NewInlineOverflowHandler(table CardTable, dcq *DirtyCardQueue, stats *RefinementStats) OverflowHandler {
	return &inlineOverflow{table: table, dcq: dcq, stats: stats}
}

func (h *inlineOverflow) Overflow(q *WrittenCardQueue) error {
	invariant.Check(q.kind == storageInline, "inline overflow handler attached to a non-inline queue")

	fullFence()
	q.MarkCardsDirty(h.table, h.dcq, h.stats)

	return nil
}

// indirectOverflow handles indirect-storage queues in "immediate
// dirtying" mode: if still using the
// 2-slot initial spillover, promote to a real external buffer first;
// otherwise run the dirtying pipeline on the current external buffer
// in place.
type indirectOverflow struct {
	table CardTable
	dcq   *DirtyCardQueue
	stats *RefinementStats
}

// NewIndirectOverflowHandler builds the overflow handler for an
// indirect WCQ that always dirties immediately (mutator_should_mark_
// cards_dirty == true, or deferred mode is disabled process-wide).
func NewIndirectOverflowHandler(table CardTable, dcq *DirtyCardQueue, stats *RefinementStats) OverflowHandler {
	return &indirectOverflow{table: table, dcq: dcq, stats: stats}
}

func (h *indirectOverflow) Overflow(q *WrittenCardQueue) error {
	invariant.Check(q.kind == storageIndirect, "indirect overflow handler attached to a non-indirect queue")

	if q.usingInitial {
		q.promoteFromInitial()

		return nil
	}

	fullFence()
	q.MarkCardsDirty(h.table, h.dcq, h.stats)

	return nil
}

// deferredOverflow handles indirect-storage queues when deferred
// dirtying may be active: if the queue set
// currently wants immediate dirtying, this delegates to the same
// pipeline as indirectOverflow; otherwise it promotes from the initial
// buffer if needed, or else pushes the filled buffer onto the global
// completed-buffer list untouched and retargets the queue to a fresh
// buffer - no filter transform, no card-table access, no fence.
type deferredOverflow struct {
	set   *WrittenCardQueueSet
	table CardTable
	dcq   *DirtyCardQueue
	stats *RefinementStats
}

// NewDeferredOverflowHandler builds the overflow handler for an
// indirect WCQ operating under a queue set that may defer dirtying to
// refinement workers.
func NewDeferredOverflowHandler(set *WrittenCardQueueSet, table CardTable, dcq *DirtyCardQueue, stats *RefinementStats) OverflowHandler {
	return &deferredOverflow{set: set, table: table, dcq: dcq, stats: stats}
}

func (h *deferredOverflow) Overflow(q *WrittenCardQueue) error {
	invariant.Check(q.kind == storageIndirect, "deferred overflow handler attached to a non-indirect queue")

	if h.set.MutatorShouldMarkCardsDirty() {
		if q.usingInitial {
			q.promoteFromInitial()

			return nil
		}

		fullFence()
		q.MarkCardsDirty(h.table, h.dcq, h.stats)

		return nil
	}

	if q.usingInitial {
		q.promoteFromInitial()

		return nil
	}

	full := q.TakeBuffer()
	h.set.EnqueueCompletedBuffer(full)

	return nil
}
