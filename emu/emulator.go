package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/riversim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated (via exit syscall).
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes RISC-V instructions functionally, one per step.
type Emulator struct {
	regFile        *RegFile
	csr            *CSRFile
	memory         *Memory
	decoder        *insts.Decoder
	syscallHandler SyscallHandler

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	// I/O
	stdout io.Writer
	stderr io.Writer

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithStackPointer sets the initial stack pointer value.
func WithStackPointer(sp uint64) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.WriteReg(RegSP, sp)
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new RISC-V emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		csr:     NewCSRFile(),
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
	e.branchUnit = NewBranchUnit(e.regFile)

	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.memory, e.stdout, e.stderr)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// CSR returns the emulator's CSR file.
func (e *Emulator) CSR() *CSRFile {
	return e.csr
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram loads a program into memory and sets the entry point.
// The program can be either a []byte or a *Memory.
func (e *Emulator) LoadProgram(entry uint64, program interface{}) {
	switch p := program.(type) {
	case []byte:
		e.memory.LoadProgram(entry, p)
	case *Memory:
		e.memory = p
		e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
		if h, ok := e.syscallHandler.(*DefaultSyscallHandler); ok {
			h.SetMemory(e.memory)
		}
	}
	e.regFile.PC = entry
}

// Step executes a single instruction.
// Returns a StepResult indicating whether execution should continue.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{
			Err: fmt.Errorf("max instructions reached"),
		}
	}

	word := e.memory.Read32(e.regFile.PC)
	inst := e.decoder.Decode(word)
	result := e.execute(inst)

	e.instructionCount++

	return result
}

// Run executes instructions until the program exits or an error occurs.
// Returns the exit code (-1 if error).
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", result.Err)
			return -1
		}
	}
}

// execute dispatches and executes a decoded instruction.
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	pc := e.regFile.PC

	if inst.Unsupported {
		return StepResult{
			Err: fmt.Errorf("unsupported instruction 0x%08X at PC=0x%X", inst.Word, pc),
		}
	}

	switch {
	case inst.Op == insts.OpECALL:
		e.regFile.PC += 4
		res := e.syscallHandler.Handle(e.regFile)
		return StepResult{Exited: res.Exited, ExitCode: res.ExitCode}

	case inst.Op == insts.OpEBREAK:
		return StepResult{
			Exited:   true,
			ExitCode: -1,
			Err:      fmt.Errorf("EBREAK at PC=0x%X", pc),
		}

	case inst.Op == insts.OpMRET:
		e.csr.MRet()
		e.regFile.PC = e.csr.ReadCSR(CSRMepc)
		return StepResult{}

	case inst.Op == insts.OpURET:
		e.regFile.PC = e.csr.ReadCSR(CSRUepc)
		return StepResult{}

	case inst.IsBranch():
		e.branchUnit.Branch(inst)
		return StepResult{}

	case inst.Op == insts.OpJAL:
		e.branchUnit.JAL(inst)
		return StepResult{}

	case inst.Op == insts.OpJALR:
		e.branchUnit.JALR(inst)
		return StepResult{}

	case inst.Op == insts.OpLUI:
		e.regFile.WriteReg(inst.Rd, uint64(inst.Imm))

	case inst.Op == insts.OpAUIPC:
		e.regFile.WriteReg(inst.Rd, pc+uint64(inst.Imm))

	case inst.IsLoad():
		e.lsu.Load(inst)

	case inst.IsStore():
		e.lsu.Store(inst)

	case inst.IsCSR():
		e.executeCSR(inst)

	case inst.Op == insts.OpFENCE, inst.Op == insts.OpFENCEI, inst.Op == insts.OpWFI:
		// No architectural effect in a single-hart functional model.

	default:
		if !e.alu.Execute(inst) {
			return StepResult{
				Err: fmt.Errorf("unimplemented op %v at PC=0x%X", inst.Op, pc),
			}
		}
	}

	e.regFile.PC += 4

	return StepResult{}
}

// executeCSR performs an atomic read-modify-write of a CSR.
func (e *Emulator) executeCSR(inst *insts.Instruction) {
	old := e.csr.ReadCSR(inst.CSR)
	src := e.regFile.ReadReg(inst.Rs1)
	if inst.Op >= insts.OpCSRRWI {
		src = uint64(inst.Rs1)
	}

	if next, write := CSRUpdate(inst.Op, old, src, inst.Rs1); write {
		e.csr.WriteCSR(inst.CSR, next)
	}
	e.regFile.WriteReg(inst.Rd, old)
}

// CSRUpdate computes the new CSR value for a Zicsr instruction and reports
// whether the CSR is written. Set and clear forms with rs1 (or zimm) equal
// to zero do not write.
func CSRUpdate(op insts.Op, old, src uint64, rs1 uint8) (uint64, bool) {
	switch op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		return src, true
	case insts.OpCSRRS, insts.OpCSRRSI:
		return old | src, rs1 != 0
	case insts.OpCSRRC, insts.OpCSRRCI:
		return old &^ src, rs1 != 0
	}
	return old, false
}
