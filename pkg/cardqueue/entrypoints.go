package cardqueue

import "unsafe"

// The nine functions below are the overflow entry points a JIT-emitted
// inline write barrier targets when its fast-path slot count reaches
// zero: one per {inline, indirect, deferred} x {None, Young, Previous}.
// A barrier generator needs a concrete symbol per combination, even
// though (as overflow.go documents) the filter dimension is handled
// generically inside MarkCardsDirty and all three {None,Young,Previous}
// variants of a given storage kind resolve to the same
// [OverflowHandler] implementation. These wrappers make that surface
// real and nameable - a caller generating barrier code can take the
// address of e.g. EntryPointIndirectYoung without reaching into
// package internals.
//
// Each entry point is a thin, always-inlinable call to the queue's
// installed handler; the handler already knows its own filter mode (it
// was constructed for a specific queue), so these take no filter
// argument.
func EntryPointInlineNone(q *WrittenCardQueue) error     { return entryPoint(q, FilterNone, storageInline) }
func EntryPointInlineYoung(q *WrittenCardQueue) error    { return entryPoint(q, FilterYoung, storageInline) }
func EntryPointInlinePrevious(q *WrittenCardQueue) error { return entryPoint(q, FilterPrevious, storageInline) }

func EntryPointIndirectNone(q *WrittenCardQueue) error     { return entryPoint(q, FilterNone, storageIndirect) }
func EntryPointIndirectYoung(q *WrittenCardQueue) error    { return entryPoint(q, FilterYoung, storageIndirect) }
func EntryPointIndirectPrevious(q *WrittenCardQueue) error { return entryPoint(q, FilterPrevious, storageIndirect) }

// The three "deferred" entry points dispatch to the same installed
// handler as their indirect counterparts: whether a given overflow
// actually defers (vs dirties immediately) is a runtime decision made
// inside deferredOverflow.Overflow by consulting the WCQS flag, not a
// property these symbols can bake in statically.
func EntryPointDeferredNone(q *WrittenCardQueue) error     { return entryPoint(q, FilterNone, storageIndirect) }
func EntryPointDeferredYoung(q *WrittenCardQueue) error    { return entryPoint(q, FilterYoung, storageIndirect) }
func EntryPointDeferredPrevious(q *WrittenCardQueue) error { return entryPoint(q, FilterPrevious, storageIndirect) }

// entryPoint validates that q was actually built for the combination
// its caller's name claims, returning errWrongEntryPoint on mismatch
// (barrier-generation wiring bugs surface as an error the caller's
// tests will hit immediately, not as silent misprocessing), and then
// invokes the installed handler. It is guarded by the same
// written-card-queues feature switch Append checks: when the feature
// is disabled these symbols remain callable but no-op, matching
// Append.
func entryPoint(q *WrittenCardQueue, filter FilterMode, kind storageKind) error {
	if !writtenCardQueuesEnabled.Load() {
		return nil
	}

	if q.filter != filter || q.kind != kind {
		return errWrongEntryPoint
	}

	if q.index != 0 {
		return nil
	}

	return q.overflow.Overflow(q)
}

// FieldOffsets exposes the byte offsets of the fields a JIT-emitted
// inline barrier fast path needs to touch directly - decrement index,
// compare against zero, store into inline/indirect storage - without
// going through a function call. Go does not surface struct-field
// offsets as link-time constants, so these are computed via
// unsafe.Offsetof on a zero value; callers generating machine code
// still treat them as fixed for the process's lifetime.
type FieldOffsets struct {
	IndexInBytes   uintptr
	InlineBuffer   uintptr
	IndirectBuffer uintptr
}

// Offsets returns the field layout described by [FieldOffsets].
func Offsets() FieldOffsets {
	var q WrittenCardQueue

	return FieldOffsets{
		IndexInBytes:   unsafe.Offsetof(q.index),
		InlineBuffer:   unsafe.Offsetof(q.inline),
		IndirectBuffer: unsafe.Offsetof(q.external),
	}
}
