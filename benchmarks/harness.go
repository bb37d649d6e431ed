// Package benchmarks provides timing benchmark infrastructure for riversim.
package benchmarks

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/timing/core"
	"github.com/sarchlab/riversim/timing/latency"
)

// Version is reported in JSON output.
const Version = "0.1.0"

const (
	programAddr  = uint64(0x10000)
	stackPointer = uint64(0x80000)

	// referenceLimit stops a runaway reference run.
	referenceLimit = 10_000_000
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing core
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// DecodeStalls counts cycles the next instruction waited in decode
	DecodeStalls uint64 `json:"decode_stalls"`

	// FetchWaits counts cycles the execute stage had nothing to run
	FetchWaits uint64 `json:"fetch_waits"`

	// HazardStalls counts cycles an operand was still being written
	HazardStalls uint64 `json:"hazard_stalls"`

	// MultiCycleOps is the number of multiplier and divider operations
	MultiCycleOps uint64 `json:"multi_cycle_ops"`

	// Discarded counts fetched instructions dropped off the predicted path
	Discarded uint64 `json:"discarded"`

	ICacheHits   uint64 `json:"icache_hits"`
	ICacheMisses uint64 `json:"icache_misses"`
	DCacheHits   uint64 `json:"dcache_hits"`
	DCacheMisses uint64 `json:"dcache_misses"`

	// Branch predictor stats
	Branches          uint64  `json:"branches"`
	TakenBranches     uint64  `json:"taken_branches"`
	BTBHits           uint64  `json:"btb_hits"`
	BTBMisses         uint64  `json:"btb_misses"`
	BTBHitRatePercent float64 `json:"btb_hit_rate_percent"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// Mismatch describes how the run disagreed with the expected exit code or
	// the functional emulator. Empty when the run checks out.
	Mismatch string `json:"mismatch,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares memory before the program runs (e.g., input data)
	Setup func(memory *emu.Memory)

	// Program is the RV64 machine code to execute
	Program []byte

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Timing is the core configuration. Nil uses the defaults.
	Timing *latency.TimingConfig

	// CheckReference runs every benchmark on the functional emulator too and
	// reports disagreements in BenchmarkResult.Mismatch.
	CheckReference bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Timing:         latency.DefaultTimingConfig(),
		CheckReference: true,
		Output:         os.Stdout,
		Verbose:        false,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Timing == nil {
		config.Timing = latency.DefaultTimingConfig()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "ran %s: %d cycles\n", result.Name, result.SimulatedCycles)
		}
		results = append(results, result)
	}

	return results
}

func (h *Harness) memory(bench Benchmark) *emu.Memory {
	memory := emu.NewMemory()
	if bench.Setup != nil {
		bench.Setup(memory)
	}
	memory.LoadProgram(programAddr, bench.Program)
	return memory
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	c := core.NewCore(h.memory(bench),
		core.WithTimingConfig(h.config.Timing),
		core.WithStackPointer(stackPointer),
		core.WithStdout(io.Discard),
		core.WithStderr(io.Discard),
	)
	c.SetPC(programAddr)

	// Run simulation and measure time
	start := time.Now()
	exitCode := c.Run()
	wallTime := time.Since(start)

	stats := c.Stats()
	result := BenchmarkResult{
		Name:                bench.Name,
		Description:         bench.Description,
		SimulatedCycles:     stats.Cycles,
		InstructionsRetired: stats.Instructions,
		CPI:                 stats.CPI(),
		DecodeStalls:        stats.Stalls,
		FetchWaits:          stats.FetchWaits,
		HazardStalls:        stats.Execute.HazardStalls,
		MultiCycleOps:       stats.Execute.MultiCycleOps,
		Discarded:           stats.Discarded,
		ICacheHits:          stats.ICache.Hits,
		ICacheMisses:        stats.ICache.Misses,
		DCacheHits:          stats.DCache.Hits,
		DCacheMisses:        stats.DCache.Misses,
		Branches:            stats.Execute.Branches,
		TakenBranches:       stats.Execute.TakenBranches,
		BTBHits:             stats.Predictor.BTBHits,
		BTBMisses:           stats.Predictor.BTBMisses,
		BTBHitRatePercent:   stats.Predictor.BTBHitRate(),
		ExitCode:            exitCode,
		WallTime:            wallTime,
	}

	var problems []string
	if err := c.Err(); err != nil {
		problems = append(problems, err.Error())
	}
	if exitCode != bench.ExpectedExit {
		problems = append(problems, fmt.Sprintf("exit code %d, expected %d", exitCode, bench.ExpectedExit))
	}
	if h.config.CheckReference {
		problems = append(problems, h.checkReference(bench, exitCode, stats.Instructions)...)
	}
	result.Mismatch = strings.Join(problems, "; ")

	return result
}

// checkReference runs the benchmark on the functional emulator.
func (h *Harness) checkReference(bench Benchmark, exitCode int64, instructions uint64) []string {
	e := emu.NewEmulator(
		emu.WithStdout(io.Discard),
		emu.WithStderr(io.Discard),
		emu.WithStackPointer(stackPointer),
		emu.WithMaxInstructions(referenceLimit),
	)
	e.LoadProgram(programAddr, h.memory(bench))
	want := e.Run()

	var problems []string
	if want != exitCode {
		problems = append(problems, fmt.Sprintf("reference exit code %d, core %d", want, exitCode))
	}
	if e.InstructionCount() != instructions {
		problems = append(problems, fmt.Sprintf("reference retired %d instructions, core %d",
			e.InstructionCount(), instructions))
	}
	return problems
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== riversim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Exit Code: %d\n", r.ExitCode)
		if r.Mismatch != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  MISMATCH: %s\n", r.Mismatch)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Decode Stalls:        %d\n", r.DecodeStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Fetch Waits:          %d\n", r.FetchWaits)
		_, _ = fmt.Fprintf(h.config.Output, "  Hazard Stalls:        %d\n", r.HazardStalls)
		if r.MultiCycleOps > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Multi-cycle Ops:      %d\n", r.MultiCycleOps)
		}

		_, _ = fmt.Fprintln(h.config.Output, "  --- I-Cache ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.ICacheHits)
		_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.ICacheMisses)

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.Branches > 0 || r.BTBHits > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Branches:     %d (%d taken)\n", r.Branches, r.TakenBranches)
			_, _ = fmt.Fprintf(h.config.Output, "  BTB Hits:     %d\n", r.BTBHits)
			_, _ = fmt.Fprintf(h.config.Output, "  BTB Hit Rate: %.1f%%\n", r.BTBHitRatePercent)
			_, _ = fmt.Fprintf(h.config.Output, "  Discarded:    %d\n", r.Discarded)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,decode_stalls,fetch_waits,hazard_stalls,multi_cycle_ops,discarded,icache_hits,icache_misses,dcache_hits,dcache_misses,btb_hits,btb_misses,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.DecodeStalls,
			r.FetchWaits,
			r.HazardStalls,
			r.MultiCycleOps,
			r.Discarded,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.BTBHits,
			r.BTBMisses,
			r.ExitCode,
		)
	}
}

// BuildProgram assembles instruction words into a byte slice.
func BuildProgram(instrs ...uint32) []byte {
	program := make([]byte, 4*len(instrs))
	for i, inst := range instrs {
		binary.LittleEndian.PutUint32(program[4*i:], inst)
	}
	return program
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config is the timing configuration the core ran with
	Config *latency.TimingConfig `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Mismatches        int           `json:"mismatches"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
		if r.Mismatch != "" {
			s.Mismatches++
		}
	}
	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    h.config.Timing,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
