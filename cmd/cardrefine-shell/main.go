// cardrefine-shell is an interactive REPL for poking at a live
// card-queue/controller simulation one command at a time: a
// liner-based prompt with history and completion whose commands drive
// pkg/cardqueue, pkg/retire, and pkg/refineplan directly.
//
// Commands:
//
//	append <thread> <addr>   Append a written address on thread N's WCQ
//	overflow <thread>        Force thread N's WCQ to overflow now
//	retire                   Run one pre-evacuation retirement pass
//	tick                     Run the refine-threads-needed controller once
//	stats                    Show card-table and completed-buffer counts
//	inspect <thread>         Show one thread's WCQ/DCQ fill state
//	save-config <path>       Write the shell's current tunables to a config file
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/region-gc/cardrefine/internal/config"
	"github.com/region-gc/cardrefine/internal/simheap"
	"github.com/region-gc/cardrefine/pkg/cardqueue"
	"github.com/region-gc/cardrefine/pkg/refineplan"
	"github.com/region-gc/cardrefine/pkg/retire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cardrefine-shell: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	numThreads := 4
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil {
			return fmt.Errorf("invalid thread count %q: %w", os.Args[1], err)
		}

		numThreads = n
	}

	shell := newShell(numThreads)

	return shell.Run()
}

// shell bundles a small live simulation an operator can poke at one
// command at a time.
type shell struct {
	cfg config.Config

	table *simheap.Heap
	pool  *cardqueue.BufferPool
	set   *cardqueue.WrittenCardQueueSet
	dcqs  *retire.DCQSet

	analytics  *simheap.EWMAAnalytics
	controller *refineplan.Controller

	threads []*retire.ThreadState
	wcqs    []*cardqueue.WrittenCardQueue

	liner *liner.State
}

func newShell(numThreads int) *shell {
	cfg := config.Default()
	cfg.RetirementWorkers = 1

	table := simheap.NewHeap(1<<20, 9)
	pool := cardqueue.NewBufferPool(512, cardqueue.AllocTagWCQ)
	set := cardqueue.NewWrittenCardQueueSet(cardqueue.FilterNone, table, pool)

	dcqPool := cardqueue.NewBufferPool(512, cardqueue.AllocTagDCQ)
	dcqs := retire.NewDCQSet(dcqPool)

	analytics := &simheap.EWMAAnalytics{}
	controller := &refineplan.Controller{
		Analytics:    analytics,
		RegionBytes:  cfg.RegionBytes,
		UpdatePeriod: cfg.UpdatePeriod(),
	}

	s := &shell{cfg: cfg, table: table, pool: pool, set: set, dcqs: dcqs, analytics: analytics, controller: controller}

	for i := range numThreads {
		dcq := cardqueue.NewDirtyCardQueue(dcqPool, dcqs)
		wcq := cardqueue.NewIndirectWrittenCardQueue(cardqueue.FilterNone, pool)

		var stats cardqueue.RefinementStats

		wcq.SetOverflowHandler(cardqueue.NewDeferredOverflowHandler(set, table, dcq, &stats))

		s.wcqs = append(s.wcqs, wcq)
		s.threads = append(s.threads, &retire.ThreadState{ID: i, WCQ: wcq, DCQ: dcq})
	}

	return s
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cardrefine_shell_history")
}

// Run starts the REPL loop.
func (s *shell) Run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("cardrefine-shell (%d threads)\n", len(s.threads))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("cardrefine> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()

			return nil

		case "help", "?":
			s.printHelp()

		case "append":
			s.cmdAppend(args)

		case "overflow":
			s.cmdOverflow(args)

		case "retire":
			s.cmdRetire()

		case "tick":
			s.cmdTick()

		case "stats":
			s.cmdStats()

		case "inspect":
			s.cmdInspect(args)

		case "save-config":
			s.cmdSaveConfig(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"append", "overflow", "retire", "tick", "stats", "inspect",
		"save-config", "clear", "cls", "help", "exit", "quit", "q",
	}

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func (s *shell) printHelp() {
	fmt.Println(`Commands:
  append <thread> <addr>   Append a written address (0x-prefixed hex or decimal) on thread N's WCQ
  overflow <thread>        Force thread N's WCQ to overflow immediately
  retire                   Run one pre-evacuation retirement pass over every thread
  tick                     Run the refine-threads-needed controller once and print its decision
  stats                    Show card-table and completed-buffer counts
  inspect <thread>         Show one thread's WCQ/DCQ fill state
  save-config <path>       Write the shell's current tunables to a config file
  clear                    Clear the screen
  help                     Show this help
  exit / quit / q          Exit`)
}

func (s *shell) thread(arg string) (*retire.ThreadState, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= len(s.threads) {
		return nil, fmt.Errorf("thread %q out of range [0,%d)", arg, len(s.threads))
	}

	return s.threads[i], nil
}

func (s *shell) cmdAppend(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: append <thread> <addr>")

		return
	}

	th, err := s.thread(args[0])
	if err != nil {
		fmt.Println(err)

		return
	}

	text, base := args[1], 10
	if hex, ok := strings.CutPrefix(text, "0x"); ok {
		text, base = hex, 16
	}

	addr, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		fmt.Printf("invalid address %q\n", args[1])

		return
	}

	if err := th.WCQ.Append(uintptr(addr)); err != nil {
		fmt.Printf("append failed: %v\n", err)

		return
	}

	fmt.Printf("thread %d: wcq size=%d\n", th.ID, th.WCQ.Size())
}

func (s *shell) cmdOverflow(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: overflow <thread>")

		return
	}

	th, err := s.thread(args[0])
	if err != nil {
		fmt.Println(err)

		return
	}

	for th.WCQ.Size() < th.WCQ.EffectiveCapacity() {
		if err := th.WCQ.Append(0); err != nil {
			fmt.Printf("append failed: %v\n", err)

			return
		}
	}

	if err := th.WCQ.Append(0); err != nil {
		fmt.Printf("overflow append failed: %v\n", err)

		return
	}

	fmt.Printf("thread %d: overflowed, wcq size=%d\n", th.ID, th.WCQ.Size())
}

func (s *shell) cmdRetire() {
	task := &retire.Task{Table: s.table, Set: s.set, DCQs: s.dcqs, Workers: 1}

	result := task.Run(nil, nil, s.threads)

	s.set.SetMutatorShouldMarkCardsDirty(!s.cfg.DeferredDirtyingEnabled)
	s.analytics.ObserveConcurrentDirtyingRateMS(float64(result.FlushStats.WrittenDirtied))

	fmt.Printf("retired: written_dirtied=%d written_filtered=%d\n",
		result.FlushStats.WrittenDirtied, result.FlushStats.WrittenFiltered)
}

func (s *shell) cmdTick() {
	in := refineplan.Inputs{
		ActiveThreads:   uint(len(s.threads)),
		AvailableBytes:  1 << 30,
		NumWrittenCards: int64(len(s.wcqs)) * 4,
		NumDirtyCards:   s.set.NumCards(),
	}

	out := s.controller.Update(in)

	fmt.Printf("threads_needed=%d deactivation_threshold=%d predicted_time_ms=%.2f\n",
		out.ThreadsNeeded, out.WrittenCardsDeactivationThreshold, out.PredictedTimeUntilNextGCMS)
}

func (s *shell) cmdStats() {
	clean, dirty, young := s.table.Snapshot()

	fmt.Printf("cards: clean=%d dirty=%d young=%d\n", clean, dirty, young)
	fmt.Printf("completed-buffer list: %d cards pending\n", s.set.NumCards())
	fmt.Printf("dcq set: %d cards pending\n", s.dcqs.NumCards())

	if resident, probed := s.pool.IdleResidency(); probed > 0 {
		fmt.Printf("wcq pool idle buffers: %d/%d pages resident\n", resident, probed)
	}
}

// cmdSaveConfig persists the shell's current tunables to path, using
// internal/config's atomic writer so a concurrently starting
// cardrefine-sim never reads a half-written file.
func (s *shell) cmdSaveConfig(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: save-config <path>")

		return
	}

	if err := config.Save(args[0], s.cfg); err != nil {
		fmt.Printf("save-config failed: %v\n", err)

		return
	}

	fmt.Printf("wrote config to %s\n", args[0])
}

func (s *shell) cmdInspect(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: inspect <thread>")

		return
	}

	th, err := s.thread(args[0])
	if err != nil {
		fmt.Println(err)

		return
	}

	fmt.Printf("thread %d:\n", th.ID)
	fmt.Printf("  wcq: filter=%s size=%d/%d\n", th.WCQ.Filter(), th.WCQ.Size(), th.WCQ.EffectiveCapacity())
	fmt.Printf("  dcq: size=%d empty=%v\n", th.DCQ.Size(), th.DCQ.Empty())
}
