package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/sarchlab/riversim/timing/core"
	"github.com/sarchlab/riversim/timing/latency"
)

const defaultRuleWidth = 48

// report prints the timing summary. On a terminal the values are aligned in
// columns and sections are separated by rules sized to the window; otherwise
// every line is a plain "Key: value" pair that is easy to grep.
type report struct {
	w     io.Writer
	tw    *tabwriter.Writer
	width int
}

func newReport(w io.Writer) *report {
	r := &report{w: w}

	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r
	}

	r.width = defaultRuleWidth
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols < r.width {
		r.width = cols
	}
	r.tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	return r
}

func (r *report) section(title string) {
	r.flush()
	fmt.Fprintf(r.w, "\n%s:\n", title)
	if r.tw != nil {
		fmt.Fprintln(r.w, strings.Repeat("-", r.width))
	}
}

func (r *report) line(key, format string, args ...any) {
	value := fmt.Sprintf(format, args...)
	if r.tw != nil {
		fmt.Fprintf(r.tw, "  %s\t%s\n", key, value)
		return
	}
	fmt.Fprintf(r.w, "  %s: %s\n", key, value)
}

// share prints a cycle count with its percentage of total.
func (r *report) share(key string, n, total uint64) {
	if total == 0 {
		total = 1
	}
	r.line(key, "%d cycles (%.1f%%)", n, 100*float64(n)/float64(total))
}

func (r *report) flush() {
	if r.tw != nil {
		_ = r.tw.Flush()
	}
}

func (r *report) timing(program string, exitCode int64, s core.Stats) {
	r.section("Program")
	r.line("Program", "%s", program)
	r.line("Exit code", "%d", exitCode)
	r.line("Total Instructions", "%d", s.Instructions)
	r.line("Total Cycles", "%d", s.Cycles)
	r.line("CPI", "%.2f", s.CPI())

	r.section("Breakdown")
	r.share("Execute", s.Instructions, s.Cycles)
	r.share("Decode stalls", s.Stalls, s.Cycles)
	r.share("Fetch waits", s.FetchWaits, s.Cycles)
	r.share("Hazard stalls", s.Execute.HazardStalls, s.Cycles)

	r.section("Instruction Mix")
	for class := latency.Class(0); int(class) < latency.NumClasses; class++ {
		if n := s.Classes[class]; n > 0 {
			r.line(class.String(), "%d", n)
		}
	}

	r.section("Branch Prediction")
	r.line("Branches", "%d (%d taken)", s.Execute.Branches, s.Execute.TakenBranches)
	r.line("Calls/Returns", "%d/%d", s.Execute.Calls, s.Execute.Returns)
	r.line("BTB hit rate", "%.1f%%", s.Predictor.BTBHitRate())
	r.line("Discarded", "%d", s.Discarded)

	r.section("Memory")
	r.line("Stub line hits", "%d of %d", s.Stub.LineHits, s.Stub.Requests)
	r.line("ICache hit rate", "%.1f%%", s.ICache.HitRate())
	r.line("DCache hit rate", "%.1f%%", s.DCache.HitRate())
	r.line("Fetch faults", "%d", s.Port.Faults)

	r.section("Pipeline Events")
	r.line("Multi-cycle ops", "%d", s.Execute.MultiCycleOps)
	r.line("Flushes", "%d", s.Flushes)
	r.line("Syscalls", "%d", s.Syscalls)
	r.line("Traps", "%d", s.Traps)
	r.line("Interrupts", "%d", s.Interrupts)
	r.flush()
}
