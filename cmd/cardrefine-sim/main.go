// cardrefine-sim drives a simulated mutator population against
// pkg/cardqueue, pkg/retire, and pkg/refineplan end to end: mutators
// append written addresses, WCQ overflow dirties or defers them, a
// periodic retirement pass sweeps every thread, and the refine-threads-
// needed controller is updated each period from the resulting
// counters. It exists to exercise the whole pipeline the way a real
// collector's safepoint/refinement loop would, without a real heap.
//
// Usage:
//
//	cardrefine-sim [flags]
//
// Tunables come from internal/config (-config selects the project
// file); the remaining flags size the run and enable outputs. See -help.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/region-gc/cardrefine/internal/config"
	"github.com/region-gc/cardrefine/internal/simheap"
	"github.com/region-gc/cardrefine/pkg/cardmetrics"
	"github.com/region-gc/cardrefine/pkg/cardqueue"
	fsx "github.com/region-gc/cardrefine/pkg/fs"
	"github.com/region-gc/cardrefine/pkg/ledger"
	"github.com/region-gc/cardrefine/pkg/refineplan"
	"github.com/region-gc/cardrefine/pkg/retire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cardrefine-sim: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	mutators    int
	ticks       int
	heapCards   int
	metricsAddr string
	ledgerPath  string
	decisionLog string
}

func parseFlags(args []string) (flags, error) {
	fs := flag.NewFlagSet("cardrefine-sim", flag.ContinueOnError)

	var f flags

	fs.StringVar(&f.configPath, "config", "", "path to a .cardrefine.json config file")
	fs.IntVar(&f.mutators, "mutators", 8, "number of simulated mutator threads")
	fs.IntVar(&f.ticks, "ticks", 200, "number of simulation ticks to run")
	fs.IntVar(&f.heapCards, "heap-cards", 1<<16, "number of cards in the simulated card table")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	fs.StringVar(&f.ledgerPath, "ledger", "", "if set, record each controller decision to this SQLite file")
	fs.StringVar(&f.decisionLog, "decision-log", "", "if set, atomically overwrite this file with the latest controller decision as JSON")

	return f, fs.Parse(args)
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	cfg, sources, err := config.Load(workDir, f.configPath, os.Environ())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if sources.Project != "" {
		log.Printf("loaded project config from %s", sources.Project)
	}

	ctx := context.Background()

	var led *ledger.Ledger

	if f.ledgerPath != "" {
		led, err = ledger.Open(ctx, f.ledgerPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}

		defer led.Close()
	}

	metrics := cardmetrics.New()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{Addr: f.metricsAddr, Handler: mux}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server: %v", err)
			}
		}()

		log.Printf("serving metrics on http://%s/metrics", f.metricsAddr)
	}

	var decisionWriter *fsx.AtomicWriter
	if f.decisionLog != "" {
		decisionWriter = fsx.NewAtomicWriter(fsx.NewReal())
	}

	sim := newSimulation(cfg, f.mutators, f.heapCards)

	for tick := range f.ticks {
		sim.tickMutators()

		if tick%10 == 9 {
			result := sim.retire()
			metrics.ObserveRefinementStatsDelta(result.FlushStats.Add(result.MutatorStats))
		}

		out := sim.updateController()
		sim.applyWorkerStates(out)
		metrics.ObserveControllerOutput(out, sim.set.NumCards())

		if led != nil {
			if err := led.Record(ctx, time.Now(), sim.lastInputs, out); err != nil {
				log.Printf("ledger record: %v", err)
			}
		}

		if decisionWriter != nil {
			if err := writeDecisionLog(decisionWriter, f.decisionLog, sim.lastInputs, out); err != nil {
				log.Printf("decision log: %v", err)
			}
		}
	}

	sim.printSummary()

	// Final safepoint: drop whatever is still pending rather than
	// leaving completed buffers dangling, and account for the drop.
	retire.AbandonPostBarrierLogsAndStats(sim.threads, sim.set, sim.dcqs)
	metrics.ObserveAbandoned(sim.set.Abandoned())

	return nil
}

// decisionLogEntry is the JSON shape written to -decision-log: the
// latest controller call's inputs and published outputs, the same
// pair pkg/ledger persists to SQLite, but as a single human-readable
// file a shell script or dashboard can tail without a SQL driver.
type decisionLogEntry struct {
	Inputs  refineplan.Inputs  `json:"inputs"`
	Outputs refineplan.Outputs `json:"outputs"`
}

// writeDecisionLog overwrites path with entry's JSON encoding via a
// rename-based atomic writer so a reader never observes a
// half-written file.
func writeDecisionLog(w *fsx.AtomicWriter, path string, in refineplan.Inputs, out refineplan.Outputs) error {
	body, err := json.MarshalIndent(decisionLogEntry{Inputs: in, Outputs: out}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decision log entry: %w", err)
	}

	return w.WriteWithDefaults(path, bytes.NewReader(body))
}

func filterFromConfig(mode string) cardqueue.FilterMode {
	switch mode {
	case "young":
		return cardqueue.FilterYoung
	case "previous":
		return cardqueue.FilterPrevious
	default:
		return cardqueue.FilterNone
	}
}

// simulation bundles every collaborator a real mutator/refinement
// process would wire together, scaled down to run in one binary.
type simulation struct {
	cfg config.Config

	table *simheap.Heap
	pool  *cardqueue.BufferPool
	set   *cardqueue.WrittenCardQueueSet
	dcqs  *retire.DCQSet

	controller *refineplan.Controller
	analytics  *simheap.EWMAAnalytics

	threads []*retire.ThreadState
	wcqs    []*cardqueue.WrittenCardQueue

	// workerStates tracks the refinement worker pool's Active/Parked
	// status against the controller's latest published targets.
	workerStates []refineplan.WorkerState

	lastInputs refineplan.Inputs

	totalRefined int64
}

func newSimulation(cfg config.Config, numMutators, heapCards int) *simulation {
	cardqueue.SetWrittenCardQueuesEnabled(cfg.WrittenCardQueuesEnabled)

	table := simheap.NewHeap(heapCards, 9)
	pool := cardqueue.NewBufferPool(512, cardqueue.AllocTagWCQ)
	filter := filterFromConfig(cfg.FilterMode)
	set := cardqueue.NewWrittenCardQueueSet(filter, table, pool)
	set.SetMutatorShouldMarkCardsDirty(!cfg.DeferredDirtyingEnabled)

	dcqPool := cardqueue.NewBufferPool(512, cardqueue.AllocTagDCQ)
	dcqs := retire.NewDCQSet(dcqPool)

	analytics := &simheap.EWMAAnalytics{}
	controller := &refineplan.Controller{
		Analytics:               analytics,
		RegionBytes:             cfg.RegionBytes,
		UpdatePeriod:            cfg.UpdatePeriod(),
		DeferredDirtyingEnabled: cfg.DeferredDirtyingEnabled,
	}

	sim := &simulation{
		cfg: cfg, table: table, pool: pool, set: set, dcqs: dcqs,
		controller: controller, analytics: analytics,
		workerStates: make([]refineplan.WorkerState, max(1, cfg.RetirementWorkers)),
	}

	for i := range numMutators {
		dcq := cardqueue.NewDirtyCardQueue(dcqPool, dcqs)
		wcq := cardqueue.NewIndirectWrittenCardQueue(filter, pool)

		var stats cardqueue.RefinementStats

		wcq.SetOverflowHandler(cardqueue.NewDeferredOverflowHandler(set, table, dcq, &stats))

		sim.wcqs = append(sim.wcqs, wcq)
		sim.threads = append(sim.threads, &retire.ThreadState{ID: i, WCQ: wcq, DCQ: dcq})
	}

	return sim
}

// tickMutators simulates each thread logging a burst of written
// addresses, the way a write barrier's fast path would.
func (s *simulation) tickMutators() {
	written := 0

	for _, wcq := range s.wcqs {
		burst := rand.IntN(8) + 1
		for range burst {
			addr := uintptr(rand.IntN(s.table.NumCards()) << s.table.CardShift())
			if err := wcq.Append(addr); err != nil {
				log.Printf("append: %v", err)
			}

			written++
		}
	}

	s.analytics.ObserveIncomingWrittenRateMS(float64(written))
}

// retire runs one pre-evacuation retirement pass over every simulated
// thread, returning its final accounting.
func (s *simulation) retire() retire.Result {
	task := &retire.Task{
		Table:                  s.table,
		Set:                    s.set,
		DCQs:                   s.dcqs,
		DeferredDirtyingActive: s.cfg.DeferredDirtyingEnabled,
		Workers:                max(1, s.cfg.RetirementWorkers),
		ChunkSize:              s.cfg.RetirementChunkSize,
	}

	result := task.Run(nil, nil, s.threads)

	// Run's construction disables mutator dirtying for the pause; the
	// pause is over, restore the configured steady-state mode.
	s.set.SetMutatorShouldMarkCardsDirty(!s.cfg.DeferredDirtyingEnabled)

	s.totalRefined += result.FlushStats.WrittenDirtied
	s.analytics.ObserveConcurrentDirtyingRateMS(float64(result.FlushStats.WrittenDirtied))

	return result
}

// updateController feeds the refine-threads-needed controller the
// current pending-card counters and returns its published decision.
func (s *simulation) updateController() refineplan.Outputs {
	in := refineplan.Inputs{
		ActiveThreads:    uint(max(1, s.cfg.RetirementWorkers)),
		AvailableBytes:   s.cfg.RegionBytes * 64,
		NumWrittenCards:  int64(len(s.wcqs)) * 4,
		NumDirtyCards:    s.set.NumCards(),
		TargetDirtyCards: 0,
	}

	s.lastInputs = in

	return s.controller.Update(in)
}

// applyWorkerStates transitions the simulated refinement worker pool
// against the controller's latest decision: workers above the
// threads-needed target park once the pending backlog falls to the
// deactivation threshold, and parked workers below it wake.
func (s *simulation) applyWorkerStates(out refineplan.Outputs) {
	pending := s.set.NumCards()

	for i := range s.workerStates {
		switch {
		case refineplan.ShouldBeActive(i, out.ThreadsNeeded):
			s.workerStates[i] = refineplan.Active
		case refineplan.ShouldPark(pending, out.WrittenCardsDeactivationThreshold, true):
			s.workerStates[i] = refineplan.Parked
		}
	}
}

func (s *simulation) printSummary() {
	active := 0

	for _, st := range s.workerStates {
		if st == refineplan.Active {
			active++
		}
	}

	clean, dirty, young := s.table.Snapshot()

	fmt.Printf("cards: clean=%d dirty=%d young=%d\n", clean, dirty, young)
	fmt.Printf("pending in completed-buffer list: %d\n", s.set.NumCards())
	fmt.Printf("total cards dirtied across retirement passes: %d\n", s.totalRefined)
	fmt.Printf("refine workers: %d active, %d parked\n", active, len(s.workerStates)-active)
}
