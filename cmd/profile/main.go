// Package main provides a profiling wrapper for riversim to find simulator
// hot spots.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/loader"
	"github.com/sarchlab/riversim/timing/core"
	"github.com/sarchlab/riversim/timing/latency"
)

var (
	timing      = flag.Bool("timing", false, "Profile the cycle-level core instead of the emulator")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Uint64("max-instr", 1000000, "max instructions for the emulator (0 = unlimited)")
	cycles      = flag.Uint64("max-cycles", 10000000, "max cycles for the core (0 = unlimited)")
	base        = flag.Uint64("base", 0x10000, "Load address of raw (non-ELF) images")
	quiet       = flag.Bool("quiet", true, "Discard the program's own output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)
	prog, err := loader.LoadFile(programPath, *base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)

	var progOut io.Writer = os.Stdout
	if *quiet {
		progOut = io.Discard
	}

	start := time.Now()

	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	var exitCode int64
	var instrCount, cycleCount uint64
	if *timing {
		exitCode, instrCount, cycleCount = runTimingProfile(prog, progOut)
	} else {
		exitCode, instrCount = runEmulationProfile(prog, progOut)
	}

	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Exit code: %d\n", exitCode)
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
	if cycleCount > 0 {
		fmt.Printf("Simulated cycles/second: %.0f\n", float64(cycleCount)/elapsed.Seconds())
	}
}

func runEmulationProfile(prog *loader.Program, out io.Writer) (int64, uint64) {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	emulator := emu.NewEmulator(
		emu.WithStdout(out),
		emu.WithStackPointer(prog.InitialSP),
		emu.WithMaxInstructions(*instruction),
	)
	emulator.LoadProgram(prog.EntryPoint, memory)

	exitCode := emulator.Run()
	return exitCode, emulator.InstructionCount()
}

func runTimingProfile(prog *loader.Program, out io.Writer) (int64, uint64, uint64) {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	timingConfig := latency.DefaultTimingConfig()
	timingConfig.MaxCycles = *cycles

	c := core.NewCore(memory,
		core.WithTimingConfig(timingConfig),
		core.WithStackPointer(prog.InitialSP),
		core.WithStdout(out),
	)
	c.SetPC(prog.EntryPoint)

	exitCode := c.Run()
	if err := c.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Simulation stopped: %v\n", err)
	}

	stats := c.Stats()
	return exitCode, stats.Instructions, stats.Cycles
}
