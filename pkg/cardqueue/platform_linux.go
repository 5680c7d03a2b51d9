package cardqueue

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// residentSlotPages reports how many of the whole pages backing buf's
// slot allocation are currently resident in physical memory, via
// mincore. The probe is read-only: it inspects kernel page-table state
// and never touches slot contents, so it is safe on buffers in any
// state, including ones sitting idle on a pool free list or just
// handed out to another goroutine. Returns (0, 0) when the allocation
// contains no whole page or the probe fails.
func residentSlotPages(buf *Buffer) (resident, probed int) {
	if len(buf.slots) == 0 {
		return 0, 0
	}

	page := uintptr(unix.Getpagesize())
	size := uintptr(len(buf.slots)) * unsafe.Sizeof(uintptr(0))
	start := uintptr(unsafe.Pointer(&buf.slots[0]))

	// mincore wants a page-aligned start, so only whole pages inside
	// the allocation are probed.
	lo := (start + page - 1) &^ (page - 1)
	hi := (start + size) &^ (page - 1)

	if hi <= lo {
		return 0, 0
	}

	vec := make([]byte, (hi-lo)/page)
	region := unsafe.Slice((*byte)(unsafe.Pointer(lo)), hi-lo)

	if err := unix.Mincore(region, vec); err != nil {
		return 0, 0
	}

	for _, v := range vec {
		if v&1 != 0 {
			resident++
		}
	}

	return resident, len(vec)
}
