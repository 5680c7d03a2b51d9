package refineplan_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/region-gc/cardrefine/pkg/refineplan"
)

// TestUpdateShortHorizonLiteralScenario pins the short-horizon case
// with concrete numbers (time_to_gc=4ms, update_period=5ms,
// active_threads=3) and diffs every published field at once.
func TestUpdateShortHorizonLiteralScenario(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{AllocRegionRate: 1},
		RegionBytes:  1,
		UpdatePeriod: 5 * time.Millisecond,
	}

	out := c.Update(refineplan.Inputs{ActiveThreads: 3, AvailableBytes: 4})

	want := refineplan.Outputs{
		ThreadsNeeded:                     3,
		WrittenCardsDeactivationThreshold: 0,
		PredictedTimeUntilNextGCMS:        4,
		PredictedWrittenCardsAtNextGC:     0,
		PredictedDirtyCardsAtNextGC:       0,
	}

	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("Update() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateShortHorizonShortcut(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{AllocRegionRate: 1, IncomingWritten: 10, IncomingDirty: 5},
		RegionBytes:  1024,
		UpdatePeriod: time.Second,
	}

	out := c.Update(refineplan.Inputs{ActiveThreads: 3, AvailableBytes: 100})
	require.Equal(t, uint(3), out.ThreadsNeeded)
}

func TestUpdateShortHorizonFloorsAtOneThread(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{AllocRegionRate: 1},
		RegionBytes:  1024,
		UpdatePeriod: time.Second,
	}

	out := c.Update(refineplan.Inputs{ActiveThreads: 0, AvailableBytes: 100})
	require.Equal(t, uint(1), out.ThreadsNeeded)
}

func TestUpdateWarmUpCaseWithNoPredictors(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{AllocRegionRate: 0.001},
		RegionBytes:  1024,
		UpdatePeriod: time.Millisecond,
	}

	out := c.Update(refineplan.Inputs{AvailableBytes: 1 << 40})
	require.Equal(t, uint(1), out.ThreadsNeeded)
}

func TestUpdateZeroAllocRateGivesZeroTimeToGC(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{},
		RegionBytes:  1024,
		UpdatePeriod: time.Second,
	}

	out := c.Update(refineplan.Inputs{AvailableBytes: 1 << 40, ActiveThreads: 2})
	require.Equal(t, 0.0, out.PredictedTimeUntilNextGCMS)
	require.Equal(t, uint(2), out.ThreadsNeeded)
}

func TestUpdateClampsTimeToGCToOneHour(t *testing.T) {
	c := &refineplan.Controller{
		Analytics:    refineplan.StaticAnalytics{AllocRegionRate: 1e-12, ConcurrentRefine: 1},
		RegionBytes:  1,
		UpdatePeriod: time.Millisecond,
	}

	out := c.Update(refineplan.Inputs{AvailableBytes: 1 << 60})
	require.Equal(t, 3_600_000.0, out.PredictedTimeUntilNextGCMS)
}

func TestUpdateRefineNeedScalesWithBacklog(t *testing.T) {
	c := &refineplan.Controller{
		Analytics: refineplan.StaticAnalytics{
			AllocRegionRate:  0.0001,
			ConcurrentRefine: 10,
		},
		RegionBytes:  1 << 20,
		UpdatePeriod: time.Millisecond,
	}

	out := c.Update(refineplan.Inputs{
		AvailableBytes:   1 << 40,
		NumDirtyCards:    100_000_000,
		TargetDirtyCards: 0,
	})

	require.Greater(t, out.ThreadsNeeded, uint(1))
}

func TestUpdateDeferredDirtyingSetsDeactivationThreshold(t *testing.T) {
	c := &refineplan.Controller{
		Analytics: refineplan.StaticAnalytics{
			AllocRegionRate:    0.0001,
			ConcurrentDirtying: 50,
			ConcurrentRefine:   50,
		},
		RegionBytes:             1 << 20,
		UpdatePeriod:            time.Millisecond,
		DeferredDirtyingEnabled: true,
	}

	out := c.Update(refineplan.Inputs{AvailableBytes: 1 << 40, NumWrittenCards: 1000})
	require.Greater(t, out.WrittenCardsDeactivationThreshold, int64(0))
}

func TestUpdateNoDeactivationThresholdWhenDeferredDisabled(t *testing.T) {
	c := &refineplan.Controller{
		Analytics: refineplan.StaticAnalytics{
			AllocRegionRate:    0.0001,
			ConcurrentDirtying: 50,
			ConcurrentRefine:   50,
		},
		RegionBytes:  1 << 20,
		UpdatePeriod: time.Millisecond,
	}

	out := c.Update(refineplan.Inputs{AvailableBytes: 1 << 40, NumWrittenCards: 1000})
	require.Equal(t, int64(0), out.WrittenCardsDeactivationThreshold)
}

func TestShouldBeActiveAndShouldPark(t *testing.T) {
	require.True(t, refineplan.ShouldBeActive(0, 3))
	require.True(t, refineplan.ShouldBeActive(2, 3))
	require.False(t, refineplan.ShouldBeActive(3, 3))

	require.True(t, refineplan.ShouldPark(5, 10, true))
	require.False(t, refineplan.ShouldPark(15, 10, true))
	require.False(t, refineplan.ShouldPark(5, 10, false))
}
