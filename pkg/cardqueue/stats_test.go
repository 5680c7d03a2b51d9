package cardqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

func TestRefinementStatsAddSubRoundTrip(t *testing.T) {
	a := cardqueue.RefinementStats{RefinedCards: 10, WrittenDirtied: 5, RefinementTime: 3 * time.Millisecond}
	b := cardqueue.RefinementStats{RefinedCards: 2, WrittenDirtied: 1, RefinementTime: time.Millisecond}

	sum := a.Add(b)
	require.Equal(t, a, sum.Sub(b))
}

func TestRefinementStatsReset(t *testing.T) {
	s := cardqueue.RefinementStats{RefinedCards: 99}
	s.Reset()
	require.Equal(t, cardqueue.RefinementStats{}, s)
}

func TestRefinedPerMS(t *testing.T) {
	s := cardqueue.RefinementStats{RefinedCards: 1000, RefinementTime: 500 * time.Millisecond}
	require.InDelta(t, 2.0, s.RefinedPerMS(), 0.001)
}

func TestRefinedPerMSZeroTimeIsZero(t *testing.T) {
	s := cardqueue.RefinementStats{RefinedCards: 1000}
	require.Equal(t, 0.0, s.RefinedPerMS())
}

func TestWrittenDirtiedPerMS(t *testing.T) {
	s := cardqueue.RefinementStats{WrittenDirtied: 400, WrittenCardTime: 200 * time.Millisecond}
	require.InDelta(t, 2.0, s.WrittenDirtiedPerMS(), 0.001)
}
