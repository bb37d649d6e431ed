// Package pipeline provides the execute-stage machinery of the timing core:
// the tagged register file, the branch target buffer and predictor, hazard
// detection and the execute stage itself.
//
// Every component follows the same clocking convention. Comb computes the
// next state from the registered state and the current inputs, Commit
// latches it on the clock edge, and Tick does both.
package pipeline

import "github.com/sarchlab/riversim/timing/arith"

// MemOp describes the memory access an issued instruction requests.
type MemOp struct {
	Load    bool
	Store   bool
	SignExt bool
	// Size is log2 of the access size in bytes.
	Size uint8
	Addr uint64
	// Data is the store value.
	Data uint64
}

// Clear resets the memory operation to none.
func (m *MemOp) Clear() {
	*m = MemOp{}
}

// multiOp holds an instruction occupying the multiplier or divider.
type multiOp struct {
	mulEna bool
	divEna bool

	rv32     bool
	unsigned bool
	high     bool
	residual bool
	mode     arith.SignMode
	a1, a2   uint64

	pc      uint64
	instr   uint32
	npc     uint64
	resAddr uint8
}

// PipelineState is the registered state of the execute stage.
type PipelineState struct {
	// Valid is set for the cycle after an instruction issued.
	Valid bool
	PC    uint64
	NPC   uint64
	Instr uint32

	ResAddr uint8
	ResData uint64
	ResTag  uint8

	MemOp MemOp

	Hazard HazardState

	MultiBusy      bool
	MultiRemaining int
	multi          multiOp

	TrapPending bool
	TrapCause   uint64
	TrapPC      uint64
	irqLevel    bool

	Jump bool
	Call bool
	Ret  bool

	// Tags holds the last tag issued for each destination register.
	Tags [NumRegisters]uint8
}

// Clear resets the state to its power-on value with the given next pc.
func (s *PipelineState) Clear(resetVector uint64) {
	*s = PipelineState{NPC: resetVector}
}
