package benchmarks

import (
	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/insts"
)

const dataAddr = 0x20000

// Registers used by the programs below.
const (
	t0 uint8 = 5
	t1 uint8 = 6
	t2 uint8 = 7
	s0 uint8 = 8
	t3 uint8 = 28
	t4 uint8 = 29
	t5 uint8 = 30
)

var enc = insts.MustEncode

// GetMicrobenchmarks returns the standard set of microbenchmarks.
// Each benchmark targets a specific core characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		mulDivMix(),
		matrixMultiply2x2(),
		loopSimulation(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		matrixMultiply2x2(),
		branchTaken(),
	}
}

func exit() []uint32 {
	return []uint32{
		enc(insts.OpADDI, emu.RegA7, 0, 0, int64(emu.SyscallExit)),
		enc(insts.OpECALL, 0, 0, 0, 0),
	}
}

func build(parts ...[]uint32) []byte {
	var words []uint32
	for _, p := range parts {
		words = append(words, p...)
	}
	return BuildProgram(words...)
}

// 1. Arithmetic Sequential - Tests ALU throughput with independent operations
func arithmeticSequential() Benchmark {
	var body []uint32
	for i := 0; i < 20; i++ {
		rd := emu.RegA0 + uint8(i%5)
		body = append(body, enc(insts.OpADDI, rd, rd, 0, 1))
	}
	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADDI operations over 5 registers - measures ALU throughput",
		Program:      build(body, exit()),
		ExpectedExit: 4,
	}
}

// 2. Dependency Chain - Tests write-back latency with RAW hazards
func dependencyChain() Benchmark {
	body := make([]uint32, 20)
	for i := range body {
		body[i] = enc(insts.OpADDI, emu.RegA0, emu.RegA0, 0, 1)
	}
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs (a0 = a0 + 1) - measures the register hazard penalty",
		Program:      build(body, exit()),
		ExpectedExit: 20,
	}
}

// 3. Memory Sequential - Tests store and load throughput on one line
func memorySequential() Benchmark {
	body := []uint32{
		enc(insts.OpLUI, t0, 0, 0, dataAddr),
		enc(insts.OpADDI, t1, 0, 0, 7),
		enc(insts.OpSD, 0, t0, t1, 0),
		enc(insts.OpSD, 0, t0, t1, 8),
		enc(insts.OpSD, 0, t0, t1, 16),
		enc(insts.OpSD, 0, t0, t1, 24),
		enc(insts.OpLD, emu.RegA0, t0, 0, 0),
		enc(insts.OpLD, t2, t0, 0, 8),
		enc(insts.OpADD, emu.RegA0, emu.RegA0, t2, 0),
		enc(insts.OpLD, t2, t0, 0, 16),
		enc(insts.OpADD, emu.RegA0, emu.RegA0, t2, 0),
		enc(insts.OpLD, t2, t0, 0, 24),
		enc(insts.OpADD, emu.RegA0, emu.RegA0, t2, 0),
	}
	return Benchmark{
		Name:         "memory_sequential",
		Description:  "4 stores then 4 loads to consecutive doublewords - measures data-side latency",
		Program:      build(body, exit()),
		ExpectedExit: 28,
	}
}

// 4. Function Calls - Tests JAL/JALR through the BTB
func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 calls to a leaf function - measures call/return prediction",
		Program: build([]uint32{
			enc(insts.OpADDI, t0, 0, 0, 5),
			enc(insts.OpADDI, emu.RegA0, 0, 0, 0),
			enc(insts.OpJAL, emu.RegRA, 0, 0, 20), // call add3
			enc(insts.OpADDI, t0, t0, 0, -1),
			enc(insts.OpBNE, 0, t0, 0, -8),
		}, exit(), []uint32{
			// add3:
			enc(insts.OpADDI, emu.RegA0, emu.RegA0, 0, 3),
			enc(insts.OpJALR, 0, emu.RegRA, 0, 0),
		}),
		ExpectedExit: 15,
	}
}

// 5. Branch Taken - Tests an always-taken forward branch inside a loop
func branchTaken() Benchmark {
	return Benchmark{
		Name:        "branch_taken",
		Description: "10 iterations with a taken forward branch - measures branch redirect cost",
		Program: build([]uint32{
			enc(insts.OpADDI, t0, 0, 0, 10),
			enc(insts.OpADDI, emu.RegA0, 0, 0, 0),
			enc(insts.OpBEQ, 0, 0, 0, 8),
			enc(insts.OpADDI, emu.RegA0, emu.RegA0, 0, 100), // skipped
			enc(insts.OpADDI, emu.RegA0, emu.RegA0, 0, 1),
			enc(insts.OpADDI, t0, t0, 0, -1),
			enc(insts.OpBNE, 0, t0, 0, -16),
		}, exit()),
		ExpectedExit: 10,
	}
}

// 6. Mul/Div Mix - Tests the multi-cycle units back to back
func mulDivMix() Benchmark {
	return Benchmark{
		Name:        "mul_div_mix",
		Description: "MUL, DIV and REM on dependent operands - measures multi-cycle latency",
		Program: build([]uint32{
			enc(insts.OpADDI, t0, 0, 0, 7),
			enc(insts.OpADDI, t1, 0, 0, 6),
			enc(insts.OpMUL, t2, t0, t1, 0),
			enc(insts.OpADDI, t3, 0, 0, 3),
			enc(insts.OpDIV, t4, t2, t3, 0),
			enc(insts.OpADDI, t5, 0, 0, 5),
			enc(insts.OpREM, emu.RegA0, t4, t5, 0),
		}, exit()),
		ExpectedExit: 4, // (7*6/3) % 5
	}
}

// 7. Matrix Multiply 2x2 - Loads, multiplies and stores a small matrix product
func matrixMultiply2x2() Benchmark {
	const (
		a, b, c, d uint8 = 11, 12, 13, 14
		e, f, g, h uint8 = 18, 19, 20, 21
		p0, p1     uint8 = 22, 23
		c00, c11   uint8 = 24, 25
	)
	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "Trace of a 2x2 matrix product from memory - mixes loads and multiplies",
		Setup: func(memory *emu.Memory) {
			for i, v := range []uint64{1, 2, 3, 4, 5, 6, 7, 8} {
				memory.Write64(dataAddr+uint64(8*i), v)
			}
		},
		Program: build([]uint32{
			enc(insts.OpLUI, s0, 0, 0, dataAddr),
			enc(insts.OpLD, a, s0, 0, 0),
			enc(insts.OpLD, b, s0, 0, 8),
			enc(insts.OpLD, c, s0, 0, 16),
			enc(insts.OpLD, d, s0, 0, 24),
			enc(insts.OpLD, e, s0, 0, 32),
			enc(insts.OpLD, f, s0, 0, 40),
			enc(insts.OpLD, g, s0, 0, 48),
			enc(insts.OpLD, h, s0, 0, 56),
			enc(insts.OpMUL, p0, a, e, 0),
			enc(insts.OpMUL, p1, b, g, 0),
			enc(insts.OpADD, c00, p0, p1, 0),
			enc(insts.OpMUL, p0, c, f, 0),
			enc(insts.OpMUL, p1, d, h, 0),
			enc(insts.OpADD, c11, p0, p1, 0),
			enc(insts.OpSD, 0, s0, c00, 64),
			enc(insts.OpSD, 0, s0, c11, 72),
			enc(insts.OpADD, emu.RegA0, c00, c11, 0),
		}, exit()),
		ExpectedExit: 69, // 19 + 50
	}
}

// 8. Loop Simulation - Sums 10..1 with a backward branch
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "10-iteration counted loop - measures backward branch prediction",
		Program: build([]uint32{
			enc(insts.OpADDI, t0, 0, 0, 10),
			enc(insts.OpADDI, t1, 0, 0, 0),
			enc(insts.OpADD, t1, t1, t0, 0),
			enc(insts.OpADDI, t0, t0, 0, -1),
			enc(insts.OpBNE, 0, t0, 0, -8),
			enc(insts.OpADDI, emu.RegA0, t1, 0, 0),
		}, exit()),
		ExpectedExit: 55,
	}
}
