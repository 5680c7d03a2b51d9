package refineplan

import (
	"math"
	"time"
)

// Inputs is one Update call's worth of live counters.
type Inputs struct {
	ActiveThreads    uint
	AvailableBytes   int64
	NumWrittenCards  int64
	NumDirtyCards    int64
	TargetDirtyCards int64
}

// Outputs is everything Update publishes: the thread-count target
// plus the figures a policy logs alongside it.
type Outputs struct {
	ThreadsNeeded                     uint
	WrittenCardsDeactivationThreshold int64
	PredictedTimeUntilNextGCMS        float64
	PredictedWrittenCardsAtNextGC     int64
	PredictedDirtyCardsAtNextGC       int64
}

// Controller computes how many concurrent refinement workers should be
// running. Not safe for concurrent Update calls; callers serialize
// through whatever scheduling loop drives the refinement policy.
type Controller struct {
	Analytics Analytics

	// RegionBytes is a heap region's size; AllocRegionRateMS × RegionBytes
	// gives the allocation byte rate.
	RegionBytes int64

	// UpdatePeriod is how often Update is called; several steps compare
	// time_to_gc against multiples of this.
	UpdatePeriod time.Duration

	// DeferredDirtyingEnabled gates step 6's "dirtying need" term: when
	// false, mutators always dirty their own overflowed cards and there
	// is no deferred backlog for a worker to drain, so only the refine
	// need contributes.
	DeferredDirtyingEnabled bool
}

// Update recomputes the worker-count target and deactivation threshold
// from one period's worth of counters and the current predictor state.
func (c *Controller) Update(in Inputs) Outputs {
	updatePeriodMS := msOf(c.UpdatePeriod)

	// Step 1: time to next GC from the allocation byte rate.
	allocBytesRate := c.Analytics.AllocRegionRateMS() * float64(c.RegionBytes)

	var timeToGC float64

	if allocBytesRate != 0 {
		timeToGC = float64(in.AvailableBytes) / allocBytesRate

		if oneHourMS := msOf(time.Hour); timeToGC > oneHourMS {
			timeToGC = oneHourMS
		}
	}

	// Step 2: predicted card counts at that horizon.
	incomingWritten := c.Analytics.IncomingWrittenRateMS()
	incomingDirty := c.Analytics.IncomingDirtyRateMS()

	predictedWritten := float64(in.NumWrittenCards) + incomingWritten*timeToGC
	predictedDirty := float64(in.NumDirtyCards) + incomingDirty*timeToGC

	out := Outputs{
		// Step 3: default deactivation threshold.
		WrittenCardsDeactivationThreshold: 0,
		PredictedTimeUntilNextGCMS:        timeToGC,
		PredictedWrittenCardsAtNextGC:     int64(predictedWritten),
		PredictedDirtyCardsAtNextGC:       int64(predictedDirty),
	}

	// Step 4: short-horizon shortcut.
	if timeToGC <= updatePeriodMS {
		out.ThreadsNeeded = max(in.ActiveThreads, 1)

		return out
	}

	dirtyingRate := c.Analytics.ConcurrentDirtyingRateMS()
	refineRate := c.Analytics.ConcurrentRefineRateMS()

	// Step 5: warm-up case, no predictors trained yet.
	if dirtyingRate == 0 && refineRate == 0 {
		out.ThreadsNeeded = 1

		return out
	}

	// Step 6: accumulate the nthreads estimate.
	var nthreads float64

	cardsToRefine := predictedDirty - float64(in.TargetDirtyCards)
	if cardsToRefine > 0 {
		if refineRate == 0 {
			nthreads += 1.0
		} else {
			nthreads += cardsToRefine / (refineRate * timeToGC)
		}
	}

	if c.DeferredDirtyingEnabled {
		out.WrittenCardsDeactivationThreshold = int64(dirtyingRate * updatePeriodMS / 2)

		switch {
		case dirtyingRate == 0:
			nthreads += 1.0
		default:
			minCTS := predictedWritten / (dirtyingRate * timeToGC)
			periodThreads := (float64(in.NumWrittenCards) + incomingDirty*updatePeriodMS) / (dirtyingRate * updatePeriodMS)

			nthreads += min(min(minCTS+1, 2*minCTS), periodThreads)
		}
	}

	// Steps 7-8: integralize and clamp. The clamp has to happen before
	// the float-to-uint conversion: converting an out-of-range float is
	// not defined to saturate in Go.
	const maxUint = ^uint(0)

	switch {
	case nthreads <= 1:
		out.ThreadsNeeded = 1
	case nthreads >= float64(maxUint):
		out.ThreadsNeeded = maxUint
	case timeToGC <= 5*updatePeriodMS:
		out.ThreadsNeeded = uint(math.Ceil(nthreads))
	default:
		out.ThreadsNeeded = uint(math.Round(nthreads))
	}

	return out
}
