// Package cardmetrics exposes the controller's published targets and
// the running refinement-stats totals as Prometheus gauges/counters.
package cardmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/region-gc/cardrefine/pkg/cardqueue"
	"github.com/region-gc/cardrefine/pkg/refineplan"
)

// Metrics bundles every gauge/counter this module publishes. Callers
// register it with a prometheus.Registerer of their choosing (the
// simulation CLI uses the default registry and serves /metrics).
type Metrics struct {
	NumCards                       prometheus.Gauge
	ThreadsNeeded                  prometheus.Gauge
	WrittenCardsDeactivationThresh prometheus.Gauge
	PredictedTimeUntilNextGCMS     prometheus.Gauge
	PredictedWrittenCardsAtNextGC  prometheus.Gauge
	PredictedDirtyCardsAtNextGC    prometheus.Gauge

	RefinedCards     prometheus.Counter
	PrecleanedCards  prometheus.Counter
	DirtiedCards     prometheus.Counter
	WrittenDirtied   prometheus.Counter
	WrittenFiltered  prometheus.Counter
	WrittenCardTotal prometheus.Counter

	AbandonedCards prometheus.Counter
}

// New constructs every metric under the "cardrefine" namespace.
func New() *Metrics {
	ns := "cardrefine"

	return &Metrics{
		NumCards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "num_cards",
			Help: "Cards currently sitting in completed, not-yet-refined buffers.",
		}),
		ThreadsNeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "threads_needed",
			Help: "Controller's last-published refine-worker target.",
		}),
		WrittenCardsDeactivationThresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "written_cards_deactivation_threshold",
			Help: "Pending-card count below which a worker may park.",
		}),
		PredictedTimeUntilNextGCMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "predicted_time_until_next_gc_ms",
			Help: "Controller's predicted time to the next evacuation pause, in ms.",
		}),
		PredictedWrittenCardsAtNextGC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "predicted_written_cards_at_next_gc",
			Help: "Controller's predicted written-card backlog at the next pause.",
		}),
		PredictedDirtyCardsAtNextGC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "predicted_dirty_cards_at_next_gc",
			Help: "Controller's predicted dirty-card backlog at the next pause.",
		}),
		RefinedCards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "refined_cards_total",
			Help: "Cumulative cards refined.",
		}),
		PrecleanedCards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "precleaned_cards_total",
			Help: "Cumulative cards precleaned.",
		}),
		DirtiedCards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "dirtied_cards_total",
			Help: "Cumulative cards dirtied.",
		}),
		WrittenDirtied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "written_dirtied_total",
			Help: "Cumulative written-card entries that transitioned clean->dirty.",
		}),
		WrittenFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "written_filtered_total",
			Help: "Cumulative written-card entries dropped (duplicate or already non-clean).",
		}),
		WrittenCardTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "written_card_total",
			Help: "Cumulative written-card entries observed.",
		}),
		AbandonedCards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "abandoned_cards_total",
			Help: "Cumulative cards dropped by AbandonCompletedBuffers.",
		}),
	}
}

// Register registers every metric with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.NumCards, m.ThreadsNeeded, m.WrittenCardsDeactivationThresh,
		m.PredictedTimeUntilNextGCMS, m.PredictedWrittenCardsAtNextGC, m.PredictedDirtyCardsAtNextGC,
		m.RefinedCards, m.PrecleanedCards, m.DirtiedCards,
		m.WrittenDirtied, m.WrittenFiltered, m.WrittenCardTotal, m.AbandonedCards,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// ObserveControllerOutput updates the gauge set from one controller
// Update call's result.
func (m *Metrics) ObserveControllerOutput(out refineplan.Outputs, numCards int64) {
	m.NumCards.Set(float64(numCards))
	m.ThreadsNeeded.Set(float64(out.ThreadsNeeded))
	m.WrittenCardsDeactivationThresh.Set(float64(out.WrittenCardsDeactivationThreshold))
	m.PredictedTimeUntilNextGCMS.Set(out.PredictedTimeUntilNextGCMS)
	m.PredictedWrittenCardsAtNextGC.Set(float64(out.PredictedWrittenCardsAtNextGC))
	m.PredictedDirtyCardsAtNextGC.Set(float64(out.PredictedDirtyCardsAtNextGC))
}

// ObserveRefinementStatsDelta adds delta's counts onto the running
// counters. Callers pass the per-interval delta (e.g. stats.Sub of two
// snapshots), never a cumulative total, since Prometheus counters only
// ever increase.
func (m *Metrics) ObserveRefinementStatsDelta(delta cardqueue.RefinementStats) {
	m.RefinedCards.Add(float64(delta.RefinedCards))
	m.PrecleanedCards.Add(float64(delta.PrecleanedCards))
	m.DirtiedCards.Add(float64(delta.DirtiedCards))
	m.WrittenDirtied.Add(float64(delta.WrittenDirtied))
	m.WrittenFiltered.Add(float64(delta.WrittenFiltered))
	m.WrittenCardTotal.Add(float64(delta.WrittenCardTotal))
}

// ObserveAbandoned adds an AbandonCompletedBuffers drop count.
func (m *Metrics) ObserveAbandoned(dropped int64) {
	m.AbandonedCards.Add(float64(dropped))
}
