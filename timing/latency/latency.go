// Package latency provides the timing configuration of the core and the
// per-instruction execute latencies it implies.
package latency

import (
	"github.com/sarchlab/riversim/insts"
	"github.com/sarchlab/riversim/timing/arith"
)

// Class groups instructions by the unit that executes them.
type Class uint8

// Instruction classes.
const (
	ClassALU Class = iota
	ClassBranch
	ClassJump
	ClassLoad
	ClassStore
	ClassMultiply
	ClassDivide
	ClassSystem
)

var classNames = [...]string{
	ClassALU:      "alu",
	ClassBranch:   "branch",
	ClassJump:     "jump",
	ClassLoad:     "load",
	ClassStore:    "store",
	ClassMultiply: "multiply",
	ClassDivide:   "divide",
	ClassSystem:   "system",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// NumClasses is the number of instruction classes.
const NumClasses = int(ClassSystem) + 1

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// Classify returns the execution class of an instruction.
func (t *Table) Classify(inst *insts.Instruction) Class {
	switch {
	case inst == nil:
		return ClassALU
	case inst.IsMul():
		return ClassMultiply
	case inst.IsDiv():
		return ClassDivide
	case inst.IsLoad():
		return ClassLoad
	case inst.IsStore():
		return ClassStore
	case inst.IsBranch():
		return ClassBranch
	case inst.Op == insts.OpJAL || inst.Op == insts.OpJALR:
		return ClassJump
	case inst.IsCSR(), inst.Unsupported:
		return ClassSystem
	}

	switch inst.Op {
	case insts.OpECALL, insts.OpEBREAK, insts.OpMRET, insts.OpURET,
		insts.OpFENCE, insts.OpFENCEI, insts.OpWFI:
		return ClassSystem
	}
	return ClassALU
}

// GetLatency returns the cycles from the execute stage accepting the
// instruction to its result being available to a dependent instruction.
// Memory operations report the data cache hit latency on top of issue.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	switch t.Classify(inst) {
	case ClassMultiply:
		return arith.MultiplierLatency + 1
	case ClassDivide:
		return arith.DividerLatency + 1
	case ClassLoad, ClassStore:
		return 1 + t.config.DCacheHitLatency
	}
	return 1
}

// GetMinLatency returns the minimum execution latency.
func (t *Table) GetMinLatency(inst *insts.Instruction) uint64 {
	return t.GetLatency(inst)
}

// GetMaxLatency returns the maximum execution latency. Memory operations
// assume a data cache miss.
func (t *Table) GetMaxLatency(inst *insts.Instruction) uint64 {
	switch t.Classify(inst) {
	case ClassLoad, ClassStore:
		return 1 + t.config.DCacheMissLatency
	}
	return t.GetLatency(inst)
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return t.IsLoadOp(inst) || t.IsStoreOp(inst)
}

// IsLoadOp returns true if the instruction is a load operation.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	return inst != nil && inst.IsLoad()
}

// IsStoreOp returns true if the instruction is a store operation.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	return inst != nil && inst.IsStore()
}

// IsBranchOp returns true if the instruction may redirect the pc.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	switch t.Classify(inst) {
	case ClassBranch, ClassJump:
		return true
	}
	return false
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
