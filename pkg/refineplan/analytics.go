// Package refineplan implements the refine-threads-needed controller:
// given analytic predictions of allocation and card-traffic rates, it
// decides how many concurrent refinement workers should run and at
// what pending-card threshold they should self-deactivate.
package refineplan

import "time"

// Analytics supplies the five rate predictors the controller consumes.
// A zero value from any predictor means "no estimate yet" and is
// handled explicitly by Update, not treated as a real zero rate
// everywhere (e.g. a genuinely zero dirtying rate still adds a full
// worker to the estimate).
type Analytics interface {
	// AllocRegionRateMS predicts regions allocated per millisecond.
	AllocRegionRateMS() float64
	// IncomingWrittenRateMS predicts written cards logged per millisecond.
	IncomingWrittenRateMS() float64
	// IncomingDirtyRateMS predicts dirty cards produced per millisecond.
	IncomingDirtyRateMS() float64
	// ConcurrentDirtyingRateMS predicts written cards a single worker
	// can dirty per millisecond.
	ConcurrentDirtyingRateMS() float64
	// ConcurrentRefineRateMS predicts dirty cards a single worker can
	// refine per millisecond.
	ConcurrentRefineRateMS() float64
}

// StaticAnalytics is a fixed-value [Analytics] implementation for
// tests (the simulation CLIs use simheap's adaptive EWMAAnalytics
// instead): every predictor returns whatever was set on construction,
// with no adaptation to observed behavior.
type StaticAnalytics struct {
	AllocRegionRate    float64
	IncomingWritten    float64
	IncomingDirty      float64
	ConcurrentDirtying float64
	ConcurrentRefine   float64
}

func (a StaticAnalytics) AllocRegionRateMS() float64        { return a.AllocRegionRate }
func (a StaticAnalytics) IncomingWrittenRateMS() float64    { return a.IncomingWritten }
func (a StaticAnalytics) IncomingDirtyRateMS() float64      { return a.IncomingDirty }
func (a StaticAnalytics) ConcurrentDirtyingRateMS() float64 { return a.ConcurrentDirtying }
func (a StaticAnalytics) ConcurrentRefineRateMS() float64   { return a.ConcurrentRefine }

// msOf converts a duration to floating-point milliseconds, the unit
// every rate predictor and the controller's arithmetic is expressed
// in.
func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
