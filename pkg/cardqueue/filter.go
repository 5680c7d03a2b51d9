package cardqueue

import "github.com/region-gc/cardrefine/internal/invariant"

// FilterMode selects how a WCQ's logged entries are interpreted and
// transformed into card-entry pointers by mark_cards_dirty. It is a
// process-wide constant; a single process never mixes
// filter modes across queues.
type FilterMode uint8

const (
	// FilterNone: entries are raw written addresses (post-barrier,
	// before any card-table knowledge). Converted by right-shifting by
	// card_shift; sequential duplicate cards are dropped during the
	// transform since the barrier had no chance to dedupe them.
	FilterNone FilterMode = iota

	// FilterYoung: entries are already card-table indices; the barrier
	// pre-checked that the target is not in the young generation
	// before logging. No transformation is needed.
	FilterYoung

	// FilterPrevious: entries are card indices with sequential
	// duplicates already dropped by the barrier, using the queue's
	// trailing sentinel slot to remember the last-logged card.
	FilterPrevious
)

func (m FilterMode) String() string {
	switch m {
	case FilterNone:
		return "none"
	case FilterYoung:
		return "young"
	case FilterPrevious:
		return "previous"
	default:
		invariant.Failf("unknown filter mode %d", uint8(m))

		return ""
	}
}

// usesSentinel reports whether a queue of this filter mode reserves its
// last slot as a "no matching card yet" marker.
func (m FilterMode) usesSentinel() bool {
	return m == FilterPrevious
}

// noMatchingCard is the sentinel value stored in a FilterPrevious
// queue's reserved slot, meaning "no card has been logged yet, any
// card index is a new one".
const noMatchingCard uintptr = ^uintptr(0)
