package invariant_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/internal/invariant"
)

func TestCheckPassesOnTrue(t *testing.T) {
	require.NotPanics(t, func() { invariant.Check(true, "unreachable") })
}

func TestCheckPanicsOnFalse(t *testing.T) {
	require.PanicsWithValue(t,
		"cardrefine: invariant violated: index 5 > capacity 4",
		func() { invariant.Check(false, "index %d > capacity %d", 5, 4) })
}

func TestCastRoundTripsRepresentableValues(t *testing.T) {
	require.Equal(t, int32(7), invariant.Cast[int32](int64(7)))
	require.Equal(t, uint64(42), invariant.Cast[uint64](uint8(42)))
	require.Equal(t, int64(-3), invariant.Cast[int64](int8(-3)))
}

func TestCastAbortsOnTruncation(t *testing.T) {
	require.Panics(t, func() { invariant.Cast[int8](int64(1 << 20)) })
}

func TestCastAbortsOnSignLoss(t *testing.T) {
	require.Panics(t, func() { invariant.Cast[uint32](int64(-1)) })
	require.Panics(t, func() { invariant.Cast[int32](uint64(1) << 63) })
}
