package cardqueue

import "time"

// RefinementStats is a plain accumulator of per-thread refinement
// counters and times. It is a value type: Add/Sub
// compose cheaply and (s.Add(t)).Sub(t) is always the identity.
type RefinementStats struct {
	RefinementTime   time.Duration
	RefinedCards     int64
	PrecleanedCards  int64
	DirtiedCards     int64
	WrittenCardTime  time.Duration
	WrittenDirtied   int64
	WrittenFiltered  int64
	WrittenCardTotal int64
}

// Add returns the element-wise sum of s and o.
func (s RefinementStats) Add(o RefinementStats) RefinementStats {
	return RefinementStats{
		RefinementTime:   s.RefinementTime + o.RefinementTime,
		RefinedCards:     s.RefinedCards + o.RefinedCards,
		PrecleanedCards:  s.PrecleanedCards + o.PrecleanedCards,
		DirtiedCards:     s.DirtiedCards + o.DirtiedCards,
		WrittenCardTime:  s.WrittenCardTime + o.WrittenCardTime,
		WrittenDirtied:   s.WrittenDirtied + o.WrittenDirtied,
		WrittenFiltered:  s.WrittenFiltered + o.WrittenFiltered,
		WrittenCardTotal: s.WrittenCardTotal + o.WrittenCardTotal,
	}
}

// Sub returns the element-wise difference of s and o.
func (s RefinementStats) Sub(o RefinementStats) RefinementStats {
	return RefinementStats{
		RefinementTime:   s.RefinementTime - o.RefinementTime,
		RefinedCards:     s.RefinedCards - o.RefinedCards,
		PrecleanedCards:  s.PrecleanedCards - o.PrecleanedCards,
		DirtiedCards:     s.DirtiedCards - o.DirtiedCards,
		WrittenCardTime:  s.WrittenCardTime - o.WrittenCardTime,
		WrittenDirtied:   s.WrittenDirtied - o.WrittenDirtied,
		WrittenFiltered:  s.WrittenFiltered - o.WrittenFiltered,
		WrittenCardTotal: s.WrittenCardTotal - o.WrittenCardTotal,
	}
}

// Reset zeroes every field in place.
func (s *RefinementStats) Reset() {
	*s = RefinementStats{}
}

// RefinedPerMS returns refined cards per millisecond of refinement
// time, or 0 if RefinementTime is zero.
func (s RefinementStats) RefinedPerMS() float64 {
	return perMS(s.RefinedCards, s.RefinementTime)
}

// WrittenDirtiedPerMS returns written-cards-dirtied per millisecond of
// written-card processing time, or 0 if that time is zero.
func (s RefinementStats) WrittenDirtiedPerMS() float64 {
	return perMS(s.WrittenDirtied, s.WrittenCardTime)
}

func perMS(count int64, d time.Duration) float64 {
	ms := d.Seconds() * 1000

	if ms == 0 {
		return 0
	}

	return float64(count) / ms
}
