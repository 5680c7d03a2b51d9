// Package retire implements the pre-evacuation batched retirement
// task: the safepoint-time sweep that drains every
// mutator's Written-Card and Dirty-Card Queues before an evacuation
// pause begins.
package retire

import (
	"sync/atomic"

	"github.com/region-gc/cardrefine/internal/invariant"
)

// defaultChunkSize bounds how many threads one worker sweeps per
// claim; small enough to balance uneven per-thread cost, large enough
// that the claim counter is not contended.
const defaultChunkSize = 250

// Claimer hands out disjoint [start, end) index ranges over a fixed
// total, lock-free, so a pool of worker goroutines can race to claim
// the next chunk of Java threads to sweep without a shared mutex.
type Claimer struct {
	next  atomic.Int64
	total int
	chunk int
}

// NewClaimer returns a claimer over [0, total) handing out chunks of
// chunkSize items at a time. chunkSize <= 0 uses defaultChunkSize.
func NewClaimer(total, chunkSize int) *Claimer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &Claimer{total: total, chunk: chunkSize}
}

// Claim atomically reserves the next chunk, returning its [start, end)
// range and ok=false once the total has been exhausted.
func (c *Claimer) Claim() (start, end int, ok bool) {
	s := invariant.Cast[int](c.next.Add(int64(c.chunk))) - c.chunk
	if s >= c.total {
		return 0, 0, false
	}

	e := s + c.chunk
	if e > c.total {
		e = c.total
	}

	return s, e, true
}
