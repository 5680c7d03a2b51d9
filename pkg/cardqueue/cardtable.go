package cardqueue

// CardValue is the state a single card's byte in the card table can
// hold. Only Clean and Dirty are produced/consumed by this package;
// Young is read-only input (the barrier has already filtered on it
// before an entry ever reaches a [FilterYoung] WCQ).
type CardValue uint8

const (
	CardClean CardValue = iota
	CardDirty
	CardYoung
)

func (v CardValue) String() string {
	switch v {
	case CardClean:
		return "clean"
	case CardDirty:
		return "dirty"
	case CardYoung:
		return "young"
	default:
		return "invalid"
	}
}

// CardIndex identifies one card: byte_for(addr) right-shifted by
// card_shift, i.e. addr / card_size.
type CardIndex uint64

// CardTable is the external card-table byte map collaborator. It is
// assumed available; this package only ever reads a card's
// current value and attempts the clean->dirty transition. Construction,
// sizing, and the young-generation predicate live outside this package.
type CardTable interface {
	// CardShift returns the number of bits a byte address is shifted by
	// to produce its CardIndex. card_size = 1 << CardShift.
	CardShift() uint

	// IndexForAddr converts a raw written address into its CardIndex.
	// Only used by [FilterNone] queues; [FilterYoung] and
	// [FilterPrevious] queues already carry CardIndex entries.
	IndexForAddr(addr uintptr) CardIndex

	// Load returns a card's current value.
	Load(idx CardIndex) CardValue

	// CompareAndSwap atomically stores new at idx iff the current value
	// equals old, returning whether the swap took place. This is the
	// only mutating operation this package ever performs on the card
	// table: the clean->dirty transition of §4.F's enqueue_clean_cards.
	CompareAndSwap(idx CardIndex, old, new CardValue) bool
}
