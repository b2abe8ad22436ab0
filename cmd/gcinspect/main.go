// Command gcinspect runs GC scenarios against a fresh store and reports
// what happened on the heap. With -i it opens an interactive browser over
// the scenarios and the heap objects they leave behind. With -types it
// loads the GC types of a wasm binary and prints their object layouts.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/hostabi"
	"github.com/wippyai/wasm-gc/store"
)

type options struct {
	cfg   store.Config
	stats bool
}

func main() {
	cfg := store.DefaultConfig()
	var (
		names       = flag.String("scenario", "all", "Comma-separated scenarios to run")
		list        = flag.Bool("list", false, "List scenarios and exit")
		stats       = flag.Bool("stats", false, "Print heap statistics after each scenario")
		verbose     = flag.Bool("v", false, "Log heap activity to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		initial     = flag.Uint("heap-initial", uint(cfg.Heap.InitialSize), "Initial heap size in bytes")
		maxSize     = flag.Uint("heap-max", uint(cfg.Heap.MaxSize), "Maximum heap size in bytes")
		zeroFreed   = flag.Bool("zero-freed", false, "Clear reclaimed objects")
		types       = flag.String("types", "", "Load the type section of a wasm file and print its layouts")
	)
	flag.Parse()

	cfg.Heap.InitialSize = uint32(*initial)
	cfg.Heap.MaxSize = uint32(*maxSize)
	cfg.Heap.ZeroFreed = *zeroFreed
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer l.Sync()
		heap.SetLogger(l.Named("heap"))
		store.SetLogger(l.Named("store"))
		hostabi.SetLogger(l.Named("hostabi"))
	}

	if *list {
		for _, sc := range scenarios {
			fmt.Printf("  %-20s %s\n", sc.name, sc.desc)
		}
		return
	}

	if *types != "" {
		if err := runTypes(os.Stdout, cfg, *types); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := options{cfg: cfg, stats: *stats}

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Stdout, opts, *names); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func selectScenarios(names string) ([]scenario, error) {
	if names == "" || names == "all" {
		return scenarios, nil
	}
	var selected []scenario
	for _, name := range strings.Split(names, ",") {
		sc, ok := findScenario(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (use -list)", name)
		}
		selected = append(selected, sc)
	}
	return selected, nil
}

func run(w io.Writer, opts options, names string) error {
	selected, err := selectScenarios(names)
	if err != nil {
		return err
	}
	for _, sc := range selected {
		fmt.Fprintf(w, "== %s: %s\n", sc.name, sc.desc)
		s, err := runScenario(sc, opts.cfg, w)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.name, err)
		}
		if opts.stats {
			printStats(w, s.Stats())
		}
		if err := s.Close(); err != nil {
			return fmt.Errorf("%s: close: %w", sc.name, err)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// runScenario runs sc in a fresh store and returns the store open so its
// heap can be inspected.
func runScenario(sc scenario, cfg store.Config, w io.Writer) (*store.Store, error) {
	s, err := store.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := sc.run(s, w); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func printStats(w io.Writer, st store.Stats) {
	h := st.Heap
	fmt.Fprintf(w, "heap: size=%d used=%d live=%d/%dB allocs=%d frees=%d free-list=%d/%dB roots=%d gen=%d\n",
		h.HeapSize, h.Used, h.LiveObjects, h.LiveBytes, h.Allocs, h.Frees,
		h.FreeBlocks, h.FreeBytes, h.Roots, h.Generation)
	fmt.Fprintf(w, "casts: fast=%d slow=%d abstract=%d immediate=%d\n",
		st.Cast.FastPath, st.Cast.SlowPath, st.Cast.Abstract, st.Cast.Immediate)
}
