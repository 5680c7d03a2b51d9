package cardqueue_test

import (
	"sync"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

// fakeCardTable is a small in-memory CardTable for tests: addresses are
// mapped to card indices by a fixed shift, exactly like a real G1 card
// table, but backed by a map instead of a byte array so tests can cover
// arbitrary address ranges without allocating gigabytes.
type fakeCardTable struct {
	shift uint

	mu    sync.Mutex
	cards map[cardqueue.CardIndex]cardqueue.CardValue
}

func newFakeCardTable(shift uint) *fakeCardTable {
	return &fakeCardTable{shift: shift, cards: make(map[cardqueue.CardIndex]cardqueue.CardValue)}
}

func (t *fakeCardTable) CardShift() uint { return t.shift }

func (t *fakeCardTable) IndexForAddr(addr uintptr) cardqueue.CardIndex {
	return cardqueue.CardIndex(addr >> t.shift)
}

func (t *fakeCardTable) Load(idx cardqueue.CardIndex) cardqueue.CardValue {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cards[idx]
}

func (t *fakeCardTable) CompareAndSwap(idx cardqueue.CardIndex, old, new cardqueue.CardValue) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cards[idx] != old {
		return false
	}

	t.cards[idx] = new

	return true
}

func (t *fakeCardTable) set(idx cardqueue.CardIndex, v cardqueue.CardValue) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cards[idx] = v
}

// fakeSink collects every buffer a DirtyCardQueue publishes, for tests
// that want to inspect what ended up dirtied.
type fakeSink struct {
	mu  sync.Mutex
	buf []*cardqueue.Buffer
}

func (s *fakeSink) Publish(buf *cardqueue.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, buf)
}

func (s *fakeSink) published() []*cardqueue.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*cardqueue.Buffer, len(s.buf))
	copy(out, s.buf)

	return out
}

func dirtiedCards(bufs []*cardqueue.Buffer) []cardqueue.CardIndex {
	var out []cardqueue.CardIndex

	for _, b := range bufs {
		for _, raw := range b.Data() {
			out = append(out, cardqueue.CardIndex(raw))
		}
	}

	return out
}
