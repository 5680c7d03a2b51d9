package cardqueue

import (
	"sync"
	"sync/atomic"

	"github.com/region-gc/cardrefine/internal/invariant"
)

// AllocTag distinguishes which logical purpose a pool's buffers serve,
// purely for diagnostics (stats dumps, the inspector CLI); it plays no
// role in pool behavior.
type AllocTag uint8

const (
	AllocTagWCQ AllocTag = iota
	AllocTagDCQ
)

func (t AllocTag) String() string {
	switch t {
	case AllocTagWCQ:
		return "wcq"
	case AllocTagDCQ:
		return "dcq"
	default:
		return "unknown"
	}
}

// Buffer is a fixed-capacity, pointer-sized array with a small
// header, laid out fill-downward: Index is the next free slot counted
// from the end, so a freshly allocated buffer has Index == Capacity
// (empty) and appends decrement Index toward zero.
//
// next links nodes in [BufferList]'s lock-free LIFO; it is otherwise
// unused and overwritten on every push.
type Buffer struct {
	next     *Buffer
	tag      AllocTag
	capacity int
	index    int
	slots    []uintptr
}

func newBuffer(capacity int, tag AllocTag) *Buffer {
	return &Buffer{
		tag:      tag,
		capacity: capacity,
		index:    capacity,
		slots:    make([]uintptr, capacity),
	}
}

// Capacity returns the buffer's total slot count.
func (b *Buffer) Capacity() int { return b.capacity }

// Size returns the number of filled slots: capacity - index.
func (b *Buffer) Size() int { return b.capacity - b.index }

// Empty reports whether the buffer holds no entries.
func (b *Buffer) Empty() bool { return b.index == b.capacity }

// reset returns the buffer to the empty state (index == capacity).
// Contents below index are considered garbage and are not cleared.
func (b *Buffer) reset() {
	b.index = b.capacity
}

// data returns the full backing slice. A Go slice already carries its
// own bounds, so there is no separate header-pointer / first-element
// translation to do here.
func (b *Buffer) data() []uintptr { return b.slots }

// filled returns the occupied region [index, capacity).
func (b *Buffer) filled() []uintptr {
	return b.slots[b.index:b.capacity]
}

// Data exposes the full backing slice for diagnostics and tests
// (the inspector shell walks this to print raw slot contents).
func (b *Buffer) Data() []uintptr { return b.data() }

// Filled exposes the occupied region [index, capacity) for diagnostics
// and tests.
func (b *Buffer) Filled() []uintptr { return b.filled() }

// Tag returns the buffer's diagnostic allocation tag.
func (b *Buffer) Tag() AllocTag { return b.tag }

// BufferPool is a fixed-capacity, free-list-backed allocator for
// Buffers. Allocate/Release are safe for concurrent mutator use;
// Release never reads or writes buffer contents, only pool bookkeeping.
type BufferPool struct {
	mu       sync.Mutex
	free     []*Buffer
	capacity int
	tag      AllocTag

	allocated int64        // total nodes ever constructed, diagnostics only
	released  atomic.Int64 // cumulative release count, diagnostics only
}

// NewBufferPool creates a pool that hands out buffers of the given
// capacity (in pointer-sized slots) tagged for diagnostics as tag.
func NewBufferPool(capacity int, tag AllocTag) *BufferPool {
	invariant.Check(capacity > 0, "buffer pool capacity must be positive, got %d", capacity)

	return &BufferPool{capacity: capacity, tag: tag}
}

// Capacity returns the slot capacity of buffers this pool hands out.
func (p *BufferPool) Capacity() int { return p.capacity }

// Allocate returns an empty buffer (index == capacity), either reused
// from the free list or freshly constructed.
func (p *BufferPool) Allocate() *Buffer {
	p.mu.Lock()

	n := len(p.free)
	if n == 0 {
		p.allocated++
		p.mu.Unlock()

		return newBuffer(p.capacity, p.tag)
	}

	node := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()

	node.reset()
	node.next = nil

	return node
}

// Release returns node to the pool. node's contents are left untouched;
// the next Allocate caller will reset the index cursor but not zero the
// slots. Callers in [BufferList] must synchronize against [safepoint]
// before releasing a node that was just popped off a lock-free list, to
// avoid handing the same address back out while a stale popper is still
// mid-CAS against it (see bufferlist.go).
func (p *BufferPool) Release(node *Buffer) {
	invariant.Check(node.capacity == p.capacity, "released buffer capacity %d does not match pool capacity %d", node.capacity, p.capacity)

	node.next = nil
	p.released.Add(1)

	p.mu.Lock()
	p.free = append(p.free, node)
	p.mu.Unlock()
}

// Stats returns diagnostic counters: nodes constructed and nodes
// released over the pool's lifetime. Not part of the hot path.
func (p *BufferPool) Stats() (allocated, released int64) {
	p.mu.Lock()
	allocated = p.allocated
	p.mu.Unlock()

	return allocated, p.released.Load()
}

// IdleResidency reports, across every buffer currently sitting on the
// free list, how many of their whole backing pages are resident in
// physical memory versus probed. Purely observational (the probe never
// reads or writes slot contents) and diagnostic only; reports (0, 0)
// on platforms without a residency probe.
func (p *BufferPool) IdleResidency() (resident, probed int) {
	p.mu.Lock()
	idle := make([]*Buffer, len(p.free))
	copy(idle, p.free)
	p.mu.Unlock()

	for _, buf := range idle {
		r, n := residentSlotPages(buf)
		resident += r
		probed += n
	}

	return resident, probed
}
