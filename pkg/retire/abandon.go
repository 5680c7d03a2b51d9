package retire

import "github.com/region-gc/cardrefine/pkg/cardqueue"

// AbandonPostBarrierLogsAndStats is the cancellation path: the only way a written/dirty-card log is ever dropped outright
// rather than refined. Safepoint-only, like every other "abandon"
// operation in this module - callers must guarantee no mutator is
// concurrently appending to any of the given threads' queues.
//
// Every thread's WCQ and DCQ end up empty, every completed buffer
// sitting in set or dcqs is dropped back to its pool, and every
// thread's accumulated mutator stats are reset.
func AbandonPostBarrierLogsAndStats(threads []*ThreadState, set *cardqueue.WrittenCardQueueSet, dcqs *DCQSet) {
	for _, th := range threads {
		if th.WCQ != nil {
			th.WCQ.Reset()
		}

		th.DCQ.Discard()
		th.MutatorStats.Reset()
	}

	set.AbandonCompletedBuffers()
	dcqs.Abandon()
}
