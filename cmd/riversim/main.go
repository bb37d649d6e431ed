// Package main provides the entry point for riversim.
// riversim runs RISC-V RV64IM programs on a functional emulator or on a
// cycle-level model of the River execute core.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/loader"
	"github.com/sarchlab/riversim/timing/core"
	"github.com/sarchlab/riversim/timing/latency"
)

// defaultBase is where raw images are placed. It matches the default reset
// vector of the timing core.
const defaultBase = 0x10000

type options struct {
	timing     bool
	configPath string
	verbose    bool
	base       uint64
	maxCycles  uint64
	maxInsts   uint64
	programArg string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses args, runs the program and returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("riversim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.BoolVar(&opts.timing, "timing", false, "Enable timing simulation mode")
	fs.StringVar(&opts.configPath, "config", "", "Path to timing configuration JSON file")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.Uint64Var(&opts.base, "base", defaultBase, "Load address of raw (non-ELF) images")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "Stop the timing core after this many cycles (0 keeps the config value)")
	fs.Uint64Var(&opts.maxInsts, "max-insts", 0, "Stop the emulator after this many instructions (0 means no limit)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(stderr, "Usage: riversim [options] <program>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		return 1
	}
	opts.programArg = fs.Arg(0)

	prog, err := loader.LoadFile(opts.programArg, opts.base)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	if opts.verbose {
		fmt.Fprintf(stdout, "Loaded: %s\n", opts.programArg)
		fmt.Fprintf(stdout, "Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Fprintf(stdout, "Segments: %d (%d bytes)\n", len(prog.Segments), prog.Size())
	}

	memory := emu.NewMemory()
	prog.LoadInto(memory)

	if opts.timing {
		return runTiming(prog, memory, opts, stdin, stdout, stderr)
	}
	return runEmulation(prog, memory, opts, stdin, stdout, stderr)
}

// runEmulation runs the program in functional emulation mode.
func runEmulation(prog *loader.Program, memory *emu.Memory, opts options,
	stdin io.Reader, stdout, stderr io.Writer) int {
	handler := emu.NewDefaultSyscallHandler(memory, stdout, stderr)
	handler.SetStdin(stdin)

	emulator := emu.NewEmulator(
		emu.WithStdout(stdout),
		emu.WithStderr(stderr),
		emu.WithSyscallHandler(handler),
		emu.WithStackPointer(prog.InitialSP),
		emu.WithMaxInstructions(opts.maxInsts),
	)
	emulator.LoadProgram(prog.EntryPoint, memory)

	exitCode := emulator.Run()

	if opts.verbose {
		fmt.Fprintf(stdout, "\nProgram: %s\n", opts.programArg)
		fmt.Fprintf(stdout, "Exit code: %d\n", exitCode)
		fmt.Fprintf(stdout, "Instructions executed: %d\n", emulator.InstructionCount())
	}

	return int(exitCode)
}

// runTiming runs the program on the cycle-level core and prints a report.
func runTiming(prog *loader.Program, memory *emu.Memory, opts options,
	stdin io.Reader, stdout, stderr io.Writer) int {
	timingConfig := latency.DefaultTimingConfig()
	if opts.configPath != "" {
		var err error
		timingConfig, err = latency.LoadConfig(opts.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading timing config: %v\n", err)
			return 1
		}
	}
	if opts.maxCycles > 0 {
		timingConfig.MaxCycles = opts.maxCycles
	}
	if err := timingConfig.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid timing config: %v\n", err)
		return 1
	}

	c := core.NewCore(memory,
		core.WithTimingConfig(timingConfig),
		core.WithStackPointer(prog.InitialSP),
		core.WithStdin(stdin),
		core.WithStdout(stdout),
		core.WithStderr(stderr),
	)
	c.SetPC(prog.EntryPoint)

	exitCode := c.Run()
	if err := c.Err(); err != nil {
		fmt.Fprintf(stderr, "Simulation error: %v (pc 0x%X)\n", err, c.PC())
	}

	newReport(stdout).timing(opts.programArg, exitCode, c.Stats())

	return int(exitCode)
}
