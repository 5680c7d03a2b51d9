package simheap

import "sync"

// EWMAAnalytics is an exponentially-weighted moving-average
// [refineplan.Analytics] implementation: each Observe* call folds a
// new sample into its running rate estimate with weight Alpha. A
// predictor that has never observed a sample reports 0, matching the
// controller's "zero means no estimate yet" contract exactly.
type EWMAAnalytics struct {
	// Alpha weights the newest sample against the running average;
	// 1.0 means "always use the latest sample", smaller values smooth
	// across more history. 0 defaults to 0.3 on first use.
	Alpha float64

	mu sync.Mutex

	allocRegionRate    float64
	incomingWritten    float64
	incomingDirty      float64
	concurrentDirtying float64
	concurrentRefine   float64

	haveAlloc, haveWritten, haveDirty, haveDirtying, haveRefine bool
}

func (a *EWMAAnalytics) alpha() float64 {
	if a.Alpha <= 0 {
		return 0.3
	}

	return a.Alpha
}

func fold(have bool, current, sample, alpha float64) (float64, bool) {
	if !have {
		return sample, true
	}

	return current*(1-alpha) + sample*alpha, true
}

// ObserveAllocRegionRateMS folds a new regions-per-ms sample in.
func (a *EWMAAnalytics) ObserveAllocRegionRateMS(sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocRegionRate, a.haveAlloc = fold(a.haveAlloc, a.allocRegionRate, sample, a.alpha())
}

// ObserveIncomingWrittenRateMS folds a new written-cards-per-ms sample in.
func (a *EWMAAnalytics) ObserveIncomingWrittenRateMS(sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.incomingWritten, a.haveWritten = fold(a.haveWritten, a.incomingWritten, sample, a.alpha())
}

// ObserveIncomingDirtyRateMS folds a new dirty-cards-per-ms sample in.
func (a *EWMAAnalytics) ObserveIncomingDirtyRateMS(sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.incomingDirty, a.haveDirty = fold(a.haveDirty, a.incomingDirty, sample, a.alpha())
}

// ObserveConcurrentDirtyingRateMS folds a new per-worker dirtying-rate sample in.
func (a *EWMAAnalytics) ObserveConcurrentDirtyingRateMS(sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.concurrentDirtying, a.haveDirtying = fold(a.haveDirtying, a.concurrentDirtying, sample, a.alpha())
}

// ObserveConcurrentRefineRateMS folds a new per-worker refine-rate sample in.
func (a *EWMAAnalytics) ObserveConcurrentRefineRateMS(sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.concurrentRefine, a.haveRefine = fold(a.haveRefine, a.concurrentRefine, sample, a.alpha())
}

func (a *EWMAAnalytics) AllocRegionRateMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allocRegionRate
}

func (a *EWMAAnalytics) IncomingWrittenRateMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.incomingWritten
}

func (a *EWMAAnalytics) IncomingDirtyRateMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.incomingDirty
}

func (a *EWMAAnalytics) ConcurrentDirtyingRateMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.concurrentDirtying
}

func (a *EWMAAnalytics) ConcurrentRefineRateMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.concurrentRefine
}
