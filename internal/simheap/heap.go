// Package simheap provides the in-memory stand-ins for the external
// collaborators the core packages only know as interfaces: the object
// heap, the card-table byte map, and the analytics predictors. Nothing under
// pkg/cardqueue, pkg/retire, or pkg/refineplan imports this package;
// it exists solely so the simulation CLIs (cmd/cardrefine-sim,
// cmd/cardrefine-shell) have something concrete to drive.
package simheap

import (
	"sync"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

// Heap is a flat byte-addressed arena backing a CardTable: addresses
// are just offsets into a conceptually infinite space, never actually
// materialized in memory (the simulation never dereferences one).
type Heap struct {
	cardShift uint
	cards     []cardqueue.CardValue
	mu        sync.Mutex
}

// NewHeap constructs a simulated heap of numCards cards, each
// covering 1<<cardShift bytes of address space.
func NewHeap(numCards int, cardShift uint) *Heap {
	return &Heap{cardShift: cardShift, cards: make([]cardqueue.CardValue, numCards)}
}

// CardShift implements [cardqueue.CardTable].
func (h *Heap) CardShift() uint { return h.cardShift }

// IndexForAddr implements [cardqueue.CardTable].
func (h *Heap) IndexForAddr(addr uintptr) cardqueue.CardIndex {
	return cardqueue.CardIndex(addr >> h.cardShift)
}

// Load implements [cardqueue.CardTable].
func (h *Heap) Load(idx cardqueue.CardIndex) cardqueue.CardValue {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.at(idx)
}

// CompareAndSwap implements [cardqueue.CardTable]. The simulated heap
// has no real hardware CAS to exercise (there is nothing multi-core
// about a Go slice under a mutex), but the interface contract -
// atomic relative to concurrent Load/CompareAndSwap callers - holds.
func (h *Heap) CompareAndSwap(idx cardqueue.CardIndex, old, new cardqueue.CardValue) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.at(idx) != old {
		return false
	}

	h.set(idx, new)

	return true
}

func (h *Heap) at(idx cardqueue.CardIndex) cardqueue.CardValue {
	if int(idx) >= len(h.cards) {
		return cardqueue.CardClean
	}

	return h.cards[idx]
}

func (h *Heap) set(idx cardqueue.CardIndex, v cardqueue.CardValue) {
	if int(idx) >= len(h.cards) {
		return
	}

	h.cards[idx] = v
}

// MarkYoung sets idx's value to CardYoung, simulating a write into a
// young-generation object the FilterYoung barrier would have already
// excluded.
func (h *Heap) MarkYoung(idx cardqueue.CardIndex) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.set(idx, cardqueue.CardYoung)
}

// Snapshot returns counts of cards in each state, for the inspector
// shell's `stats` command.
func (h *Heap) Snapshot() (clean, dirty, young int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, v := range h.cards {
		switch v {
		case cardqueue.CardClean:
			clean++
		case cardqueue.CardDirty:
			dirty++
		case cardqueue.CardYoung:
			young++
		}
	}

	return clean, dirty, young
}

// NumCards returns the simulated card-table's total size.
func (h *Heap) NumCards() int { return len(h.cards) }
