package retire

import (
	"sync"

	"github.com/region-gc/cardrefine/internal/invariant"
	"github.com/region-gc/cardrefine/pkg/cardqueue"
)

// TLABStats accumulates thread-local allocation buffer bookkeeping
// retired alongside card queues. A zero-value TLABStats means the
// thread never allocated via a TLAB this pass.
type TLABStats struct {
	Allocated int64
	Wasted    int64
}

// Add returns the element-wise sum of s and o.
func (s TLABStats) Add(o TLABStats) TLABStats {
	return TLABStats{Allocated: s.Allocated + o.Allocated, Wasted: s.Wasted + o.Wasted}
}

// Barrier is the external write-barrier collaborator: it
// must make a thread's deferred card marks visible before its queues
// are swept.
type Barrier interface {
	// MakeParsable flushes any barrier-side state for thread that the
	// retirement sweep depends on having already landed.
	MakeParsable(thread *ThreadState)
}

// TLABRetirer retires a thread's thread-local allocation buffer,
// returning its final statistics. Optional: a Task constructed with a
// nil TLABRetirer skips TLAB retirement entirely, the TLABs-disabled
// configuration.
type TLABRetirer interface {
	RetireTLAB(thread *ThreadState) TLABStats
}

// Policy is the external policy/logging collaborator that receives the
// task's final accounting.
type Policy interface {
	RecordConcurrentRefinementStats(mutatorStats, flushStats cardqueue.RefinementStats)
	RecordTLABStats(TLABStats)
}

// ThreadState is one Java mutator thread's retirement-relevant state:
// its WCQ/DCQ pair and the mutator-side stats accumulated by its
// barrier activity since the last retirement pass.
type ThreadState struct {
	ID int

	WCQ *cardqueue.WrittenCardQueue // nil if G1UseWrittenCardQueues is disabled for this thread
	DCQ *cardqueue.DirtyCardQueue

	// MutatorStats accumulates independently of this package (e.g. by
	// a simulated mutator driver or the real write-barrier slow path);
	// the sweep reads and resets it as its final per-thread step.
	MutatorStats cardqueue.RefinementStats
}

// Task is one pre-evacuation batched retirement pass: it owns no
// thread list of its own (threads are supplied per Run call, since a
// process's live thread set changes between evacuation pauses) but
// does own the global collaborators every pass needs.
type Task struct {
	Table cardqueue.CardTable
	Set   *cardqueue.WrittenCardQueueSet
	DCQs  *DCQSet

	Barrier Barrier
	TLAB    TLABRetirer // nil disables TLAB retirement
	Policy  Policy

	// DeferredDirtyingActive mirrors the process-wide configuration of
	// whether WCQ overflow ever defers to refinement workers. It does
	// not change during a Run; SetMutatorShouldMarkCardsDirty(false) governs
	// what happens for *future* mutator appends, not whether this pass
	// itself treats deferred mode as active.
	DeferredDirtyingActive bool

	Workers   int // parallel worker count for the Java-thread sweep
	ChunkSize int // 0 uses defaultChunkSize (~250)
}

// Result is one Run's final accounting, ready to hand to Policy.
type Result struct {
	MutatorStats cardqueue.RefinementStats
	FlushStats   cardqueue.RefinementStats
	TLAB         TLABStats
}

// Run executes one full retirement pass: construction, the three
// sub-tasks (serial non-Java, optional serial CR-thread, parallel
// Java), and destruction, in that order. nonJava and crThreads are
// swept serially in the calling goroutine; java is
// chunked across Task.Workers goroutines via a [Claimer].
func (t *Task) Run(nonJava, crThreads, java []*ThreadState) Result {
	t.construct()

	var (
		mutatorStats cardqueue.RefinementStats
		flushStats   cardqueue.RefinementStats
		tlab         TLABStats
	)

	for _, th := range nonJava {
		m, f, tl := t.sweepOne(th)
		mutatorStats = mutatorStats.Add(m)
		flushStats = flushStats.Add(f)
		tlab = tlab.Add(tl)
	}

	if t.DeferredDirtyingActive {
		for _, th := range crThreads {
			m, f, tl := t.sweepOne(th)
			mutatorStats = mutatorStats.Add(m)
			flushStats = flushStats.Add(f)
			tlab = tlab.Add(tl)
		}
	}

	jm, jf, jt := t.sweepJavaThreadsParallel(java)
	mutatorStats = mutatorStats.Add(jm)
	flushStats = flushStats.Add(jf)
	tlab = tlab.Add(jt)

	swept := [][]*ThreadState{nonJava, java}
	if t.DeferredDirtyingActive {
		swept = append(swept, crThreads)
	}

	return t.destruct(mutatorStats, flushStats, tlab, swept...)
}

// construct performs the pre-scheduling steps: disable deferred
// mutator dirtying, raise the mutator-refinement threshold to
// effectively infinite, and drain any paused buffers into the global
// completed list so this pass sees a consistent snapshot.
func (t *Task) construct() {
	t.Set.SetMutatorShouldMarkCardsDirty(false)
	t.DCQs.SetMutatorRefinementThreshold(MaxThreshold)
	t.DCQs.DrainPaused()
}

// sweepJavaThreadsParallel runs the per-thread sweep over java across
// Task.Workers goroutines, each claiming chunks of Task.ChunkSize
// threads at a time via a [Claimer]. When deferred dirtying is
// active, each worker then drains any buffers the written-card queue
// set still holds into a worker-local DCQ before its final flush.
func (t *Task) sweepJavaThreadsParallel(java []*ThreadState) (mutatorStats, flushStats cardqueue.RefinementStats, tlab TLABStats) {
	if len(java) == 0 {
		return cardqueue.RefinementStats{}, cardqueue.RefinementStats{}, TLABStats{}
	}

	workers := t.Workers
	if workers <= 0 {
		workers = 1
	}

	claimer := NewClaimer(len(java), t.ChunkSize)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			var (
				workerMutator cardqueue.RefinementStats
				workerFlush   cardqueue.RefinementStats
				workerTLAB    TLABStats
			)

			for {
				start, end, ok := claimer.Claim()
				if !ok {
					break
				}

				for _, th := range java[start:end] {
					m, f, tl := t.sweepOne(th)
					workerMutator = workerMutator.Add(m)
					workerFlush = workerFlush.Add(f)
					workerTLAB = workerTLAB.Add(tl)
				}
			}

			if t.DeferredDirtyingActive {
				workerFlush = workerFlush.Add(t.drainCompletedIntoLocalDCQ(t.DCQs.NewDirtyCardQueue()))
			}

			mu.Lock()
			mutatorStats = mutatorStats.Add(workerMutator)
			flushStats = flushStats.Add(workerFlush)
			tlab = tlab.Add(workerTLAB)
			mu.Unlock()
		}()
	}

	wg.Wait()

	return mutatorStats, flushStats, tlab
}

// drainCompletedIntoLocalDCQ pulls buffers from the written-card
// queue set's completed list into a worker-private scratch DCQ until
// exhausted, then flushes it. Each parallel worker gets its own
// scratch queue (via [DCQSet.NewDirtyCardQueue]) rather than sharing
// one of the Java threads' live queues, which other workers may be
// concurrently sweeping.
func (t *Task) drainCompletedIntoLocalDCQ(scratch *cardqueue.DirtyCardQueue) cardqueue.RefinementStats {
	var stats cardqueue.RefinementStats

	for t.Set.MarkCardsDirty(scratch, &stats) {
	}

	scratch.Flush()

	return stats
}

// sweepOne performs the per-thread sweep: make the thread's barrier
// state parsable, retire its TLAB, dirty its logged written cards,
// flush its DCQ, and collect and reset its mutator stats.
func (t *Task) sweepOne(th *ThreadState) (mutatorStats, flushStats cardqueue.RefinementStats, tlab TLABStats) {
	if t.Barrier != nil {
		t.Barrier.MakeParsable(th)
	}

	if t.TLAB != nil {
		tlab = t.TLAB.RetireTLAB(th)
	}

	if th.WCQ != nil {
		th.WCQ.MarkCardsDirty(t.Table, th.DCQ, &flushStats)
	}

	th.DCQ.Flush()

	mutatorStats = th.MutatorStats
	th.MutatorStats.Reset()

	return mutatorStats, flushStats, tlab
}

// destruct performs the task-destruction accounting:
// publish TLAB stats, assert every DCQ this pass touched ended up
// empty, and hand the summed mutator/flush stats to the policy.
func (t *Task) destruct(mutatorStats, flushStats cardqueue.RefinementStats, tlab TLABStats, swept ...[]*ThreadState) Result {
	for _, threads := range swept {
		AssertDrained(threads...)
	}

	if t.Policy != nil {
		t.Policy.RecordTLABStats(tlab)
		t.Policy.RecordConcurrentRefinementStats(mutatorStats, flushStats)
	}

	return Result{MutatorStats: mutatorStats, FlushStats: flushStats, TLAB: tlab}
}

// AssertDrained panics (via internal/invariant) if any of the given
// threads' DCQs are non-empty. destruct runs it over every thread the
// pass swept; it is exported so a caller can also re-check threads at
// other points, e.g. once after several Run calls.
func AssertDrained(threads ...*ThreadState) {
	for _, th := range threads {
		invariant.Check(th.DCQ.Empty(), "thread %d retired with a non-empty DCQ", th.ID)
	}
}
